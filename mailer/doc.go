// Package mailer holds the outbound message types and two development
// mailers: LogMailer for local runs and Recorder for tests.
package mailer
