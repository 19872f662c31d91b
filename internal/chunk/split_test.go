package chunk_test

import (
	"strings"
	"testing"

	"github.com/notegraphhq/notegraph/internal/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyInput(t *testing.T) {
	assert.Nil(t, chunk.Split("", 20, 20))
	assert.Nil(t, chunk.Split("   \n\t  ", 20, 20))
}

func TestSplit_BelowThreshold_SingleChunk(t *testing.T) {
	chunks := chunk.Split("  short note  ", 20, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short note", chunks[0])
}

func TestSplit_AtThreshold_SingleChunk(t *testing.T) {
	text := strings.Repeat("x", 100)
	chunks := chunk.Split(text, 50, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_ParagraphBreakPreferred(t *testing.T) {
	// Paragraph break at index 10, newline and sentence breaks later in the
	// window would lose to it.
	text := strings.Repeat("a", 10) + "\n\n" + strings.Repeat("b", 18)
	chunks := chunk.Split(text, 20, 20)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 10), chunks[0])
	assert.Equal(t, strings.Repeat("b", 18), chunks[1])
}

func TestSplit_NewlineFallback(t *testing.T) {
	text := strings.Repeat("a", 12) + "\n" + strings.Repeat("b", 16)
	chunks := chunk.Split(text, 20, 20)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 12), chunks[0])
	assert.Equal(t, strings.Repeat("b", 16), chunks[1])
}

func TestSplit_SentenceFallback_KeepsPeriod(t *testing.T) {
	text := strings.Repeat("a", 10) + ". " + strings.Repeat("b", 16)
	chunks := chunk.Split(text, 20, 20)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 10)+".", chunks[0])
	assert.Equal(t, strings.Repeat("b", 16), chunks[1])
}

func TestSplit_BreakBeforeHalfIsRejected(t *testing.T) {
	// The only newline sits before size/2, so the cut falls back to a hard
	// cut at exactly size.
	text := "aaa\n" + strings.Repeat("b", 40)
	chunks := chunk.Split(text, 20, 20)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "aaa\n"+strings.Repeat("b", 16), chunks[0])
}

func TestSplit_HardCut(t *testing.T) {
	text := strings.Repeat("a", 50)
	chunks := chunk.Split(text, 20, 20)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("a", 20), chunks[0])
	assert.Equal(t, strings.Repeat("a", 20), chunks[1])
	assert.Equal(t, strings.Repeat("a", 10), chunks[2])
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplit_LongProse(t *testing.T) {
	// ~25k chars of short sentences; every chunk should close on a sentence
	// boundary and respect the size limit.
	sentence := "The quick brown fox jumps over the lazy dog near the riverbank. "
	text := strings.Repeat(sentence, 400) // ~26k chars
	chunks := chunk.Split(text, 8000, 10000)

	require.GreaterOrEqual(t, len(chunks), 3)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 8000, "chunk %d too large", i)
		assert.NotEmpty(t, c)
		assert.True(t, strings.HasSuffix(c, "."), "chunk %d should end at a sentence boundary", i)
	}
}

func TestSplit_ContentPreserved(t *testing.T) {
	text := strings.Repeat("alpha beta gamma.\n\ndelta epsilon zeta. ", 100)
	chunks := chunk.Split(text, 300, 300)

	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c)
		b.WriteString(" ")
	}
	// Same words in the same order, whitespace aside.
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.TrimSpace(b.String())))
}
