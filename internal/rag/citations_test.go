package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"astra/internal/domain"
)

func TestResolveCitationsSingle(t *testing.T) {
	sources := []domain.Source{{URL: "https://a.test/docs", Title: "Docs Home"}}
	out := ResolveCitations("See the docs (Source 1).", sources)
	assert.Equal(t, "See the docs ([Docs Home](https://a.test/docs)).", out)
}

func TestResolveCitationsMultiple(t *testing.T) {
	sources := []domain.Source{
		{URL: "https://a.test/one", Title: "One"},
		{URL: "https://a.test/two", Title: "Two"},
	}
	out := ResolveCitations("Both agree (Source 1, Source 2).", sources)
	assert.Equal(t, "Both agree ([One](https://a.test/one), [Two](https://a.test/two)).", out)

	out = ResolveCitations("Shorthand (Source 1, 2).", sources)
	assert.Equal(t, "Shorthand ([One](https://a.test/one), [Two](https://a.test/two)).", out)
}

func TestResolveCitationsUnknownNumberLeftAlone(t *testing.T) {
	sources := []domain.Source{{URL: "https://a.test/one", Title: "One"}}
	assert.Equal(t, "Claimed (Source 3).", ResolveCitations("Claimed (Source 3).", sources))
	// A span mixing known and unknown numbers stays intact too.
	assert.Equal(t, "Mixed (Source 1, Source 9).", ResolveCitations("Mixed (Source 1, Source 9).", sources))
}

func TestResolveCitationsIgnoresPlainParens(t *testing.T) {
	sources := []domain.Source{{URL: "https://a.test/one", Title: "One"}}
	text := "Numbers (like 42) and notes (see appendix) pass through."
	assert.Equal(t, text, ResolveCitations(text, sources))
}

func TestDisplayTitleFallsBackToPathSegment(t *testing.T) {
	src := domain.Source{URL: "https://a.test/docs/getting-started.html"}
	assert.Equal(t, "Getting Started", displayTitle(src))
}

func TestDisplayTitleFallsBackToDomain(t *testing.T) {
	src := domain.Source{URL: "https://www.a.test/"}
	assert.Equal(t, "a.test", displayTitle(src))
}

func TestDisplayTitleTruncatesLongTitles(t *testing.T) {
	long := "This Is A Very Long Page Title That Keeps Going Well Past Any Reasonable Length"
	got := displayTitle(domain.Source{URL: "https://a.test", Title: long})
	assert.Len(t, got, maxDisplayTitle)
	assert.True(t, len(got) <= maxDisplayTitle)
	assert.Contains(t, got, "...")
}
