// Package jwt issues and parses the sealed access and refresh tokens.
//
// Claims are built and signed with golang-jwt (HS256), then the compact JWS is
// sealed with XChaCha20-Poly1305 so role and verification claims stay
// confidential. Both keys are derived from one configured secret with
// HKDF-SHA-256. The wire form is "v1." followed by base64url(nonce || ciphertext).
package jwt
