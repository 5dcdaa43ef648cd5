package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aileks/realm-sync/internal/apperr"
)

func split(t *testing.T, content string, max int) []Chunk {
	t.Helper()
	chunks, err := Split(content, max)
	require.NoError(t, err)
	return chunks
}

// checkInvariants verifies the properties every split must satisfy.
func checkInvariants(t *testing.T, content string, max int, chunks []Chunk) {
	t.Helper()
	prevEnd := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, content[c.Start:c.End], c.Text)
		assert.GreaterOrEqual(t, c.Start, prevEnd, "chunks overlap")
		assert.LessOrEqual(t, len(c.Text), max)
		assert.True(t, utf8.ValidString(c.Text), "chunk %d splits a rune", i)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
		// Nothing but whitespace is dropped between chunks.
		assert.Empty(t, strings.TrimSpace(content[prevEnd:c.Start]))
		prevEnd = c.End
	}
	assert.Empty(t, strings.TrimSpace(content[prevEnd:]))
}

func TestSplit_ShortContentIsOneChunk(t *testing.T) {
	content := "  Jon Snow is a member of the Night's Watch.\n"
	chunks := split(t, content, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Jon Snow is a member of the Night's Watch.", chunks[0].Text)
	assert.Equal(t, 2, chunks[0].Start)
	checkInvariants(t, content, 100, chunks)
}

func TestSplit_EmptyAndWhitespace(t *testing.T) {
	assert.Empty(t, split(t, "", 10))
	assert.Empty(t, split(t, " \n\t\n ", 10))
}

func TestSplit_DefaultSize(t *testing.T) {
	content := strings.Repeat("a", DefaultMaxChunkSize+1)
	chunks := split(t, content, 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Text, DefaultMaxChunkSize)
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	p1 := strings.Repeat("Winter is coming. ", 4) + "End one."
	p2 := "Second paragraph here."
	content := p1 + "\n\n" + p2
	chunks := split(t, content, len(p1)+10)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0].Text)
	assert.Equal(t, p2, chunks[1].Text)
	checkInvariants(t, content, len(p1)+10, chunks)
}

func TestSplit_FallsBackToSentenceEnd(t *testing.T) {
	content := "The wall is tall. The night is dark and full of terrors"
	chunks := split(t, content, 24)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "The wall is tall.", chunks[0].Text)
	checkInvariants(t, content, 24, chunks)
}

func TestSplit_FallsBackToWhitespace(t *testing.T) {
	content := "alpha beta gamma delta epsilon"
	chunks := split(t, content, 12)
	checkInvariants(t, content, 12, chunks)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	assert.Equal(t, content, strings.Join(texts, " "), "no word is cut")
}

func TestSplit_HardCutRespectsRunes(t *testing.T) {
	content := strings.Repeat("ä", 50) // 100 bytes, no whitespace
	chunks := split(t, content, 7)
	checkInvariants(t, content, 7, chunks)
	assert.Equal(t, "äää", chunks[0].Text)
}

func TestSplit_RejectsSizeBelowOneRune(t *testing.T) {
	for _, max := range []int{1, 2, MinChunkSize - 1} {
		_, err := Split("日本", max)
		assert.ErrorIs(t, err, apperr.ErrValidation, "max %d", max)
	}
}

func TestSplit_MinimumSizeHoldsLimit(t *testing.T) {
	content := "日本語😀a"
	chunks := split(t, content, MinChunkSize)
	checkInvariants(t, content, MinChunkSize, chunks)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	assert.Equal(t, []string{"日", "本", "語", "😀", "a"}, texts)
}

func TestSplit_LongMixedDocument(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Arya trains with Syrio Forel in Braavos. ")
		if i%7 == 0 {
			b.WriteString("\n\n")
		}
	}
	content := b.String()
	chunks := split(t, content, 500)
	assert.Greater(t, len(chunks), 10)
	checkInvariants(t, content, 500, chunks)
}
