package ingest

import (
	"strings"
	"unicode/utf8"
)

// ChunkerConfig sets the chunking budgets in tokens; they are converted to
// character budgets with the CharsPerToken heuristic.
type ChunkerConfig struct {
	TargetTokens  int
	OverlapTokens int
	CharsPerToken int
}

func (c ChunkerConfig) windowSize() int {
	return c.TargetTokens * c.CharsPerToken
}

func (c ChunkerConfig) overlapSize() int {
	return c.OverlapTokens * c.CharsPerToken
}

// CleanText collapses all runs of whitespace (including newlines and tabs)
// into single spaces and trims the ends.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// EstimateTokens approximates the token count of text as
// ceil(len/charsPerToken). Not real tokenization, but consistent with how
// the chunk windows are sized.
func EstimateTokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// SplitChunks splits cleaned text into overlapping windows. Each window is at
// most TargetTokens*CharsPerToken characters; consecutive windows share an
// OverlapTokens*CharsPerToken character tail. A window that is not the final
// one snaps back to the last period when that period falls past 80% of the
// window, so chunks tend to end on sentence boundaries without shrinking
// below a useful size.
//
// The advance is len(chunk)-overlap. When a snapped chunk is no longer than
// the overlap itself the advance would stop moving forward, so the window
// jumps a full size instead. With overlap < size every iteration strictly
// advances and the loop terminates.
func SplitChunks(text string, cfg ChunkerConfig) []string {
	text = CleanText(text)
	if text == "" {
		return nil
	}

	size := cfg.windowSize()
	overlap := cfg.overlapSize()
	if size <= 0 {
		size = 4000
	}
	if len(text) <= size {
		return []string{text}
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}
	chunks := make([]string, 0, len(text)/step+1)
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			// Window edges are byte offsets; walk back so a multi-byte rune
			// is never split across two chunks.
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				end = start + size
			}
		}
		chunk := text[start:end]

		// Snap to a sentence boundary, but only when this is not the final
		// window and the boundary is deep enough into the chunk.
		if end < len(text) {
			if idx := strings.LastIndex(chunk, "."); idx > int(0.8*float64(size)) {
				chunk = chunk[:idx+1]
			}
		}

		chunks = append(chunks, strings.TrimSpace(chunk))

		// The window that reaches the end of the text is the last chunk;
		// advancing by len-overlap from here would only re-emit its tail.
		if end == len(text) {
			break
		}

		advance := len(chunk) - overlap
		if len(chunk) <= overlap {
			advance = size
		}
		start += advance
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
	}
	return chunks
}
