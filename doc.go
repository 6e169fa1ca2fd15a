// Package authcore is the authentication core of a ride-sharing backend. It
// registers accounts, signs users in, rotates and revokes their tokens, runs
// the password reset and email verification flows, and keeps the auth
// identity (email and credential) separate from the business identity
// (profile) through an encrypted mapping.
//
// Build an [Engine] with [New] and [Builder.Build]; its methods are safe to
// call from many goroutines afterwards.
//
// # Architecture boundaries
//
// The root package owns the use cases and the error taxonomy. Storage and
// crypto live in sub-packages:
//
//   - identity: correlation hash, mapping encryption and the mapping table.
//   - otp: six-digit verification codes in Redis.
//   - jwt and session: sealed token pairs and their revocation state.
//   - password: argon2id hashing with legacy bcrypt verification.
//   - profile and mailer: default collaborators behind [ProfileStore] and [Mailer].
//
// Every error returned by an Engine method maps to a [Kind] through [KindOf].
// Backend failures surface as [ErrInternal] with the cause kept out of reach
// of errors.Is.
//
// # What this package must NOT do
//
//   - Return or log the auth id, an email address, a password, a code or a token.
//   - Hold a database transaction across Redis calls or password hashing.
package authcore
