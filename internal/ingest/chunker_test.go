package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{TargetTokens: 1000, OverlapTokens: 200, CharsPerToken: 4}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "one two three", CleanText("  one\n\ntwo\t three  "))
	assert.Equal(t, "", CleanText(" \n\t "))
}

func TestSplitChunksShortInput(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := SplitChunks(text, defaultChunkerConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitChunksEmptyInput(t *testing.T) {
	assert.Empty(t, SplitChunks("", defaultChunkerConfig()))
	assert.Empty(t, SplitChunks("   \n ", defaultChunkerConfig()))
}

func TestSplitChunksLongInput(t *testing.T) {
	// 10000 chars with no periods: windows of 4000 advancing by 3200.
	text := strings.Repeat("a", 10000)
	chunks := SplitChunks(text, defaultChunkerConfig())

	require.Len(t, chunks, 3)
	assert.Equal(t, 4000, len(chunks[0]))
	assert.Equal(t, 4000, len(chunks[1]))
	assert.Equal(t, 3600, len(chunks[2]))

	// Consecutive chunks share an 800 char tail.
	assert.Equal(t, chunks[0][3200:], chunks[1][:800])
	assert.Equal(t, chunks[1][3200:], chunks[2][:800])
}

func TestSplitChunksCoversWholeText(t *testing.T) {
	text := strings.Repeat("b", 13337)
	cfg := defaultChunkerConfig()
	chunks := SplitChunks(text, cfg)

	// Strip each chunk's overlap prefix and reassemble.
	overlap := cfg.OverlapTokens * cfg.CharsPerToken
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		sb.WriteString(c[overlap:])
	}
	assert.Equal(t, text, sb.String())
}

func TestSplitChunksSentenceSnap(t *testing.T) {
	// A period at 90% of the window: the first chunk must end on it.
	sentence := strings.Repeat("a", 3599) + "."
	text := sentence + strings.Repeat("b", 6000)
	chunks := SplitChunks(text, defaultChunkerConfig())

	require.NotEmpty(t, chunks)
	assert.Equal(t, 3600, len(chunks[0]))
	assert.True(t, strings.HasSuffix(chunks[0], "."))

	// A period before 80% of the window must not shrink the chunk.
	text = strings.Repeat("a", 2999) + "." + strings.Repeat("b", 7000)
	chunks = SplitChunks(text, defaultChunkerConfig())
	assert.Equal(t, 4000, len(chunks[0]))
}

func TestSplitChunksNoPeriodTerminates(t *testing.T) {
	text := strings.Repeat("x", 50000)
	chunks := SplitChunks(text, defaultChunkerConfig())

	// size 4000, advance 3200: bounded by textLength/(size-overlap)+1.
	assert.LessOrEqual(t, len(chunks), 50000/3200+1)
	assert.NotEmpty(t, chunks)
}

func TestSplitChunksDegenerateOverlap(t *testing.T) {
	// overlap >= size: the safety rule must keep the cursor moving.
	cfg := ChunkerConfig{TargetTokens: 100, OverlapTokens: 100, CharsPerToken: 4}
	text := strings.Repeat("y", 5000)
	chunks := SplitChunks(text, cfg)

	require.NotEmpty(t, chunks)
	// Every window advances a full size, so chunks are disjoint.
	assert.Len(t, chunks, 5000/400+1)
}

func TestSplitChunksKeepsRunesIntact(t *testing.T) {
	// Three byte runes: 4000 is not a multiple of 3, so a naive byte slice
	// would cut a rune at every window edge.
	text := strings.Repeat("界", 3000)
	chunks := SplitChunks(text, defaultChunkerConfig())

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d contains a split rune", i)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("", 4))
	assert.Equal(t, 1, EstimateTokens("abc", 4))
	assert.Equal(t, 1, EstimateTokens("abcd", 4))
	assert.Equal(t, 2, EstimateTokens("abcde", 4))
	assert.Equal(t, 625, EstimateTokens(strings.Repeat("a", 2500), 4))
}
