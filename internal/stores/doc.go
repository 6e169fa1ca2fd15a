// Package stores provides the Redis-backed password-reset records.
//
// # Design
//
// A reset token maps to the auth identity that requested it, and each
// identity has a pointer to its one active token. Issuing and consuming are
// single Lua scripts: issuing deletes the token the pointer named before
// writing the new pair, and consuming deletes the token together with the
// pointer. Expiry is a Redis TTL on both keys.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Generate tokens or decide rate limits.
//   - Log token values.
package stores
