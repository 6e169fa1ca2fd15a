// Package otp issues and verifies six-digit one-time codes for email
// verification.
//
// Per subject the cache holds the expected code, an attempt counter with
// the same lifetime, and a resend counter with a longer window. All state
// transitions that read and write more than one key run as Lua scripts so
// concurrent requests for the same subject observe a consistent state.
package otp
