// Package password hashes and verifies credentials.
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification also accepts bcrypt hashes ($2a$, $2b$, $2y$) carried over from
// earlier deployments. [Hasher.NeedsUpgrade] reports true for those and for
// argon2id hashes produced with weaker parameters, so the caller can rehash
// after the next successful login.
//
// Policy here is limited to length bounds. Reuse checks belong to the caller.
package password
