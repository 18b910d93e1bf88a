package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAlternativesFromID(t *testing.T) {
	alts := deriveAlternatives("#main-content")
	assert.Contains(t, alts, ".main-content")
	assert.Contains(t, alts, "[id*='main-content']")
	assert.NotContains(t, alts, "#main-content", "the original must not be re-probed")
}

func TestDeriveAlternativesFromClass(t *testing.T) {
	alts := deriveAlternatives(".search-box")
	assert.Contains(t, alts, "#search-box")
	assert.Contains(t, alts, "[class*='search-box']")
	// "search" vocabulary adds the common search guesses too.
	assert.Contains(t, alts, "input[type='search']")
}

func TestDeriveAlternativesSubmitGuesses(t *testing.T) {
	alts := deriveAlternatives("#signin-submit")
	assert.Contains(t, alts, "button[type='submit']")
	assert.Contains(t, alts, "input[type='submit']")
}

func TestDeriveAlternativesCompoundClassGetsNoTokenVariants(t *testing.T) {
	alts := deriveAlternatives(".nav .item")
	assert.NotContains(t, alts, "#nav .item")
}

func TestFindAlternativePicksFirstVisible(t *testing.T) {
	drv := newFakeDriver("[id*='login-box']")

	alt, ok := findAlternative(context.Background(), drv, "#login-box")
	require.True(t, ok)
	assert.Equal(t, "[id*='login-box']", alt)
}

func TestFindAlternativeNothingVisible(t *testing.T) {
	drv := newFakeDriver()

	_, ok := findAlternative(context.Background(), drv, "#whatever")
	assert.False(t, ok)
}
