// Package identity correlates auth identities with business identities
// without storing either identifier in plaintext.
//
// # Components
//
//   - [Hasher]: keyed deterministic hash of immutable attributes and AEAD
//     sealing of opaque identifiers.
//   - [Resolver]: owner of the identity_mappings table. Resolution by
//     identifier is a streamed scan that decrypts one column per row; resolution
//     by deterministic hash is an indexed lookup.
//
// # Scaling limit
//
// Ciphertexts are re-randomised on every call, so no index over either
// identifier exists. The scan is bounded by [ResolverConfig.MaxScanRows];
// beyond that bound the resolver fails with [ErrScanLimit] instead of
// degrading silently.
//
// # What this package must NOT do
//
//   - Index, log or return identifiers it did not decrypt itself.
//   - Import authcore or any internal package.
package identity
