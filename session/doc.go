// Package session keeps the cache-side state of issued tokens.
//
// # Keys
//
//   - refresh:{jti}: owning subject, lives as long as the refresh token. Its
//     presence means "not yet rotated or revoked". Consumption is GETDEL, so
//     concurrent rotations of one token have exactly one winner.
//   - revoke:jti:{jti}: access-token revocation flag, kept only for the
//     token's remaining lifetime.
//   - revoked_since:{subject}: unix millis of the latest mass revocation. The
//     marker only moves forward.
//
// # What this package must NOT do
//
//   - Parse or decrypt tokens; callers pass identifiers and lifetimes.
//   - Import authcore or jwt.
package session
