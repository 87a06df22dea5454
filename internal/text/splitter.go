package text

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the target window in characters; overlap preserves
	// context across chunk boundaries.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// boundary preference: paragraph, line, sentence, space, character
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Split cuts content into overlapping windows, preferring natural boundaries.
// Blank-only fragments yield no chunks.
func Split(content string) []string {
	return SplitWith(content, DefaultChunkSize, DefaultChunkOverlap)
}

func SplitWith(content string, chunkSize, overlap int) []string {
	if IsBlank(content) {
		return nil
	}

	sp := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(separators),
	)

	chunks, err := sp.SplitText(content)
	if err != nil {
		// The recursive splitter only errors on invalid options; fall back to
		// the whole fragment as a single chunk.
		return []string{strings.TrimSpace(content)}
	}

	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if !IsBlank(c) {
			out = append(out, c)
		}
	}
	return out
}

func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
