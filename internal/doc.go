// Package internal contains helpers private to authcore: random code and
// token-id generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - authdb: relational repository for auth identities
//   - limiters: per-user request limiters
//   - rate: Redis fixed-window counter primitive
//   - stores: Redis-backed password-reset records
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
