package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizePicksFrequentTopicSentences(t *testing.T) {
	text := "Astra indexes websites. Astra answers questions about websites. " +
		"The weather is nice today. Astra cites its sources for every answer."
	s := NewFrequency()
	out := s.Summarize(text, 2)

	assert.Contains(t, out, "Astra")
	assert.NotContains(t, out, "weather")
	assert.Len(t, strings.Split(out, ". "), 2)
}

func TestSummarizePreservesOriginalOrder(t *testing.T) {
	text := "First point about crawling. Filler sentence here. Second point about crawling."
	s := NewFrequency()
	out := s.Summarize(text, 2)

	first := strings.Index(out, "First point")
	second := strings.Index(out, "Second point")
	assert.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
}

func TestSummarizeShortInputReturnedWhole(t *testing.T) {
	s := NewFrequency()
	assert.Equal(t, "no terminator here", s.Summarize("  no terminator here  ", 3))
}
