// Package referralcode generates short, human-shareable referral codes.
// Codes are meant to be typed or pasted into a URL, so the alphabet omits
// characters that are easy to confuse (0/O, 1/I/l, and a few others).
// No external dependencies - uses only standard library.
package referralcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet is the unambiguous alphanumeric alphabet used for codes.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTWXYZabcdefghijkmnopqrstuvwxyz"

// DefaultLength is the default code length. Six characters over a 55-symbol
// alphabet give ~2.8e10 combinations; collisions are unlikely but the caller
// must still verify uniqueness against the store before committing.
const DefaultLength = 6

// Generator produces referral codes from a cryptographic randomness source.
type Generator struct {
	length int
}

// New creates a Generator producing codes of the given length.
// Non-positive lengths fall back to DefaultLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length}
}

// Length returns the configured code length.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a fresh random code. Pure generation: no side effects,
// no uniqueness guarantee.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("referralcode: failed to read randomness: %w", err)
	}

	var sb strings.Builder
	sb.Grow(g.length)
	for _, b := range buf {
		// Modulo bias over a 55-char alphabet is negligible for this use.
		sb.WriteByte(Alphabet[int(b)%len(Alphabet)])
	}

	return sb.String(), nil
}

// IsWellFormed reports whether s could have been produced by a Generator
// of the given length.
func IsWellFormed(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(Alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
