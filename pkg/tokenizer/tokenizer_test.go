package tokenizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		minExpect int
		maxExpect int
	}{
		{"empty", "", 0, 0},
		{"single word", "hello", 1, 3},
		{"short sentence", "Jon Snow joined the Night's Watch", 5, 15},
		{"longer text", strings.Repeat("word ", 100), 80, 200},
		{"pangram calibration", "The quick brown fox jumps over the lazy dog", 8, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := EstimateTokens(tt.text)
			assert.GreaterOrEqual(t, tokens, tt.minExpect)
			assert.LessOrEqual(t, tokens, tt.maxExpect)
		})
	}
}

func TestTruncateToTokenBudget(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		assert.Equal(t, "short text", TruncateToTokenBudget("short text", 100))
	})
	t.Run("zero budget", func(t *testing.T) {
		assert.Equal(t, "", TruncateToTokenBudget("anything", 0))
	})
	t.Run("long text gets ellipsis", func(t *testing.T) {
		out := TruncateToTokenBudget(strings.Repeat("winter is coming ", 200), 10)
		assert.True(t, strings.HasSuffix(out, "..."))
		assert.Less(t, len(out), 60)
	})
	t.Run("multibyte stays valid", func(t *testing.T) {
		out := TruncateToTokenBudget(strings.Repeat("ä", 400), 5)
		assert.True(t, utf8.ValidString(out))
	})
}

func TestBudget(t *testing.T) {
	assert.Equal(t, 512, Budget("tiny", 2, 512, 4096))
	assert.Equal(t, 4096, Budget(strings.Repeat("word ", 10000), 2, 512, 4096))

	text := strings.Repeat("word ", 1000)
	want := int(float64(EstimateTokens(text)) * 2)
	assert.Equal(t, want, Budget(text, 2, 512, 4096))
}
