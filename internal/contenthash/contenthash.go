// Package contenthash computes the two fingerprints the dedup checks rely
// on: a digest of raw uploaded bytes and a digest of a structured value's
// canonical serialization.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Bytes returns the SHA-256 hex digest of raw file bytes. Used as the
// file-identity fingerprint for exact-duplicate upload detection.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Structured returns the SHA-256 hex digest of v's canonical JSON form.
//
// Canonicalization: v is marshaled, round-tripped through generic maps and
// re-marshaled. encoding/json writes map keys in sorted order, so two
// structurally equal values hash identically regardless of field order in
// the upstream model output. Array element order is preserved; item order on
// a receipt is meaningful.
func Structured(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("Structured: marshal value: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("Structured: canonicalize: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("Structured: marshal canonical form: %w", err)
	}

	return Bytes(canonical), nil
}
