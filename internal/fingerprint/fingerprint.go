// Package fingerprint provides a short content fingerprint, used by
// internal/history as a cheap pre-filter in the duplicate-check window
// scan. The reassembly key does not use it.
//
// Adapted from the teacher's internal/crypto/keys.go, which fingerprints
// an Ed25519 public key with sha256 for TLS certificate pinning. This
// module has no peer authentication (spec.md's Non-goals exclude it),
// so only the hashing primitive survives: it fingerprints a message's
// semantic content instead of a public key, with no key-generation, PEM
// or TLS machinery around it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Of returns a short, stable hex fingerprint of s: the first 6 bytes of
// its sha256 digest, as 12 hex characters.
func Of(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}
