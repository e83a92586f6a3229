package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyInput(t *testing.T) {
	c := NewTextChunker(800, 200, 200)
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\n  \t"))
}

func TestChunkShortInputKeptWhole(t *testing.T) {
	c := NewTextChunker(800, 200, 200)
	chunks := c.Chunk("Just a tiny note.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Just a tiny note.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].Total)
}

func TestChunkPreservesParagraphOrder(t *testing.T) {
	c := NewTextChunker(300, 80, 50)
	var paragraphs []string
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Paragraph number %d talks about topic %d. It has a second sentence too.", i, i))
	}
	text := strings.Join(paragraphs, "\n\n")
	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)

	joined := ""
	for _, ch := range chunks {
		joined += ch.Text + "\n\n"
	}
	last := -1
	for i, p := range paragraphs {
		idx := strings.Index(joined, p)
		require.GreaterOrEqual(t, idx, 0, "paragraph %d missing", i)
		assert.Greater(t, idx, last, "paragraph %d out of order", i)
		last = idx
	}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(chunks), ch.Total)
	}
}

func TestChunkBoundedByChunkSize(t *testing.T) {
	c := NewTextChunker(400, 100, 50)
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Sentence %d is short. Another one follows it here.\n\n", i)
	}
	for _, ch := range c.Chunk(b.String()) {
		// Overlap plus one paragraph can slightly exceed the target, but
		// never by more than the overlap region itself.
		assert.LessOrEqual(t, len(ch.Text), 400+100+2)
	}
}

func TestChunkOversizedParagraphKept(t *testing.T) {
	c := NewTextChunker(200, 50, 50)
	huge := strings.Repeat("word ", 100) // single paragraph over chunk size
	chunks := c.Chunk(huge)
	require.Len(t, chunks, 1)
	assert.Greater(t, len(chunks[0].Text), 200)
}

func TestChunkIdempotentBelowChunkSize(t *testing.T) {
	c := NewTextChunker(500, 100, 50)
	text := strings.Repeat("Some sentences go here. More text follows. ", 20) + "\n\n" + strings.Repeat("Later paragraph content. ", 20)
	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		if len(ch.Text) <= 500 {
			again := c.Chunk(ch.Text)
			assert.LessOrEqual(t, len(again), 1, "re-chunking fragmented a finished chunk")
		}
	}
}

func TestOverlapStartsAtSentenceBoundary(t *testing.T) {
	c := NewTextChunker(200, 80, 20)
	closed := "The first sentence sits here. Mr. Smith said nothing about it. The final sentence carries the point across the boundary."
	region := c.overlapRegion(closed)
	assert.True(t, strings.HasPrefix(region, "The final sentence"), "got %q", region)
}

func TestOverlapProtectsAbbreviations(t *testing.T) {
	c := NewTextChunker(200, 60, 20)
	closed := "Filler text before the end goes on for a while here. See Dr. Jones e.g. Chapter two for details on it."
	region := c.overlapRegion(closed)
	assert.NotContains(t, region, "\x01")
	// The boundary after "Dr." must not have been chosen.
	assert.False(t, strings.HasPrefix(region, "Jones"))
}

func TestOverlapWidensForCode(t *testing.T) {
	plain := NewTextChunker(800, 100, 20)
	text := strings.Repeat("x", 300)
	code := "```\ncode block\n```\n" + text
	assert.Greater(t, len(plain.overlapRegion(code)), len(plain.overlapRegion(text)))
}
