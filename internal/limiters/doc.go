// Package limiters provides per-user request limiters built on the
// internal/rate window.
//
// # Limiters
//
//   - [ResetRequestLimiter]: caps password-reset requests per user per hour.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting.
package limiters
