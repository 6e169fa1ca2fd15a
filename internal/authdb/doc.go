// Package authdb stores auth identities: credentials, verification state and
// the lockout counters. Lockout bookkeeping is a single UPDATE so concurrent
// failures never lose an increment.
package authdb
