// Package middleware adapts authcore.Engine access-token validation to
// net/http handlers.
//
// [Guard] reads the bearer token, calls Engine.ValidateAccess and stores the
// resulting principal in the request context. [RequireVerified] additionally
// rejects principals whose email is not yet confirmed. [StatusFor] maps
// engine errors to HTTP status codes for handlers that call the engine
// directly.
//
// This package never parses tokens or touches Redis itself.
package middleware
