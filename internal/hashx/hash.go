// Package hashx computes normalized content digests for highlight text.
// The digest is the cross-device deduplication key: identical normalized
// text hashes to the same value on any device.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dpavlenko/marksync/internal/common"
)

// DigestLen is the length of a hex-encoded digest.
const DigestLen = sha256.Size * 2

// Normalize lower-cases the text and trims surrounding whitespace.
// Hash and Verify operate on the normalized form only.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Hash returns the lowercase hex SHA-256 digest of the normalized text.
// The only failure mode is invalid UTF-8 input, which is rejected rather
// than silently hashed.
func Hash(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", common.ErrValidation)
	}
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest of text and compares it to digest.
func Verify(text string, digest string) (bool, error) {
	h, err := Hash(text)
	if err != nil {
		return false, err
	}
	return h == digest, nil
}
