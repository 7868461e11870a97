package referralcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	g := New(6)

	for i := 0; i < 100; i++ {
		code, err := g.Generate()
		assert.NoError(t, err)
		assert.Len(t, code, 6)

		for _, r := range code {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected character %q in %q", r, code)
		}
	}
}

func TestGenerate_NoAmbiguousCharacters(t *testing.T) {
	for _, r := range "01IlO" {
		assert.False(t, strings.ContainsRune(Alphabet, r), "ambiguous character %q in alphabet", r)
	}
}

func TestNew_FallbackLength(t *testing.T) {
	assert.Equal(t, DefaultLength, New(0).Length())
	assert.Equal(t, DefaultLength, New(-3).Length())
	assert.Equal(t, 8, New(8).Length())
}

func TestGenerate_Varies(t *testing.T) {
	g := New(6)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := g.Generate()
		assert.NoError(t, err)
		seen[code] = true
	}

	// 50 draws from ~2.8e10 combinations should not all collide.
	assert.Greater(t, len(seen), 1)
}

func TestIsWellFormed(t *testing.T) {
	assert.True(t, IsWellFormed("Ab3kQ9", 6))
	assert.False(t, IsWellFormed("Ab3kQ", 6))
	assert.False(t, IsWellFormed("Ab3kQ0", 6)) // 0 is not in the alphabet
	assert.False(t, IsWellFormed("", 6))
}
