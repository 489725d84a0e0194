package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize produces the canonical form of a question used for exact
// matching: lowercased, punctuation replaced by spaces, whitespace runs
// collapsed, trimmed. Idempotent: Normalize(Normalize(q)) == Normalize(q).
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			lastSpace = false
		default:
			// Punctuation and whitespace both collapse to a single space
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// Fingerprint returns the stable hex SHA-256 fingerprint of normalized
// question text. Must be called with already-normalized input; the result is
// a pure function of its argument, so fingerprints survive process restarts.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// FingerprintQuestion normalizes and fingerprints raw question text in one
// step.
func FingerprintQuestion(question string) string {
	return Fingerprint(Normalize(question))
}
