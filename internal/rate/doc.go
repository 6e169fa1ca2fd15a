// Package rate provides the Redis fixed-window counter that per-user
// limiters are built on.
//
// # Window semantics
//
// INCR plus PEXPIRE on the first hit, executed as one script so a counter
// can never be left without a TTL. The window starts at the first hit and
// is not extended by later ones.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
