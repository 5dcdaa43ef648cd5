// Package chunker splits document text into bounded, ordered, non-overlapping chunks
// whose byte offsets map back into the original content.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aileks/realm-sync/internal/apperr"
)

// DefaultMaxChunkSize is the chunk size limit in bytes used when none is given.
const DefaultMaxChunkSize = 4000

// MinChunkSize is the smallest accepted limit. Any rune fits in it.
const MinChunkSize = utf8.UTFMax

// Chunk is a slice of a document. Text == content[Start:End].
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Split cuts content into chunks of at most maxChunkSize bytes. Cuts prefer a
// paragraph break, then a sentence end, then any whitespace, and fall back to a hard
// cut on a rune boundary. Whitespace between chunks belongs to no chunk. A zero or
// negative limit means DefaultMaxChunkSize; positive limits below MinChunkSize are
// rejected.
func Split(content string, maxChunkSize int) ([]Chunk, error) {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if maxChunkSize < MinChunkSize {
		return nil, apperr.Validation("max chunk size %d is below the minimum of %d bytes", maxChunkSize, MinChunkSize)
	}

	var chunks []Chunk
	pos := skipSpace(content, 0)
	for pos < len(content) {
		end := len(content)
		if end-pos > maxChunkSize {
			end = pos + cutPoint(content, pos, maxChunkSize)
		}
		end = trimSpaceRight(content, pos, end)
		if end > pos {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: content[pos:end], Start: pos, End: end})
		}
		pos = skipSpace(content, end)
	}
	return chunks, nil
}

// cutPoint returns how many bytes from pos the next chunk keeps, given that more than
// size bytes remain. Paragraph and sentence breaks only count in the last third of the
// window.
func cutPoint(content string, pos, size int) int {
	window := content[pos : pos+size]
	searchStart := len(window) * 2 / 3
	if idx := strings.LastIndex(window[searchStart:], "\n\n"); idx != -1 && searchStart+idx > 0 {
		return searchStart + idx
	}
	if idx := lastSentenceEnd(window, searchStart); idx > 0 {
		return idx
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	return hardCut(content, pos, size)
}

// lastSentenceEnd finds the last ., ! or ? at or after from that is followed by
// whitespace and returns the offset just past it.
func lastSentenceEnd(window string, from int) int {
	for i := len(window) - 2; i >= from; i-- {
		switch window[i] {
		case '.', '!', '?':
			if isSpaceByte(window[i+1]) {
				return i + 1
			}
		}
	}
	return -1
}

// hardCut backs off to a rune boundary. size is at least MinChunkSize, so at least
// one rune always fits.
func hardCut(content string, pos, size int) int {
	n := size
	for n > 0 && !utf8.RuneStart(content[pos+n]) {
		n--
	}
	if n == 0 {
		// invalid UTF-8; cut bytes
		return size
	}
	return n
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f' || b == '\v'
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func trimSpaceRight(s string, start, end int) int {
	for end > start {
		r, size := utf8.DecodeLastRuneInString(s[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return end
}
