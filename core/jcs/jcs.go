// Package jcs wraps RFC 8785 canonicalization for the policy digest. Two
// processes that loaded identical rules produce byte-identical canonical
// JSON and therefore the same sha256, regardless of field order or
// whitespace in the intermediate encoding.
package jcs

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the RFC 8785 canonical form of the JSON input.
func Canonicalize(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// Digest canonicalizes the JSON input and returns its sha256 hex digest.
func Digest(input []byte) (string, error) {
	canonical, err := Canonicalize(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
