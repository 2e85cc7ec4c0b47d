// Package token generates and fingerprints ingestion tokens. The plaintext
// token is shown to the caller exactly once; everything at rest works off
// the SHA-256 hash.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Marker is the fixed prefix of every ingestion token.
const Marker = "hdx_ingest_"

// PrefixLen is how many leading characters of the token are kept for
// display. Covers the marker plus the first character of the random body.
const PrefixLen = 12

// Generate emits a new ingestion token: the marker followed by 256 random
// bits, base64url-encoded without padding.
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Marker + base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the lowercase hex SHA-256 of the token. Comparison is by
// hash only.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the leading display characters of the token.
func Prefix(tok string) string {
	if len(tok) < PrefixLen {
		return tok
	}
	return tok[:PrefixLen]
}
