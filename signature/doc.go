// Package signature derives deterministic cache identities for generation
// requests.
//
// A Signature is the SHA-256 digest of a canonical JSON rendering of the
// normalized constraint set, meal type and request parameters. Normalization
// lower-cases and trims free text, sorts and de-duplicates set-like lists and
// rounds every number to a whole unit, so that formatting noise and
// floating-point jitter do not fragment the cache.
package signature
