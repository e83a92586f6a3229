package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"astra/internal/domain"
	"astra/internal/summarizer"
)

// Composer answers questions over a crawl or widget site: embed the
// query, retrieve scoped chunks, ask the model for a cited answer and
// resolve its citation markers into links.
type Composer struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	llm      domain.Generator
	fallback *summarizer.Frequency
}

// Retrieval floor: even when the caller asks for fewer results, the
// generation step gets at least this much context.
const minRetrieval = 10

// Per-chunk character ceiling in the prompt context block.
const maxContextChars = 1000

const answerSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Use only the information from the context to answer the question. If the context doesn't
contain enough information to answer the question, say so. When you reference specific
information, cite it with the literal marker (Source N) matching the numbered sources.`

func NewComposer(embedder domain.Embedder, index domain.VectorIndex, llm domain.Generator) *Composer {
	return &Composer{
		embedder: embedder,
		index:    index,
		llm:      llm,
		fallback: summarizer.NewFrequency(),
	}
}

// Answer runs the full retrieval/generation path for one query.
func (c *Composer) Answer(ctx context.Context, query string, scope domain.SearchScope, limit int) (domain.Answer, error) {
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.Answer{}, err
	}
	k := limit
	if k < minRetrieval {
		k = minRetrieval
	}
	hits, err := c.index.Search(ctx, vector, scope, k)
	if err != nil {
		return domain.Answer{}, err
	}
	if len(hits) == 0 {
		return domain.Answer{}, fmt.Errorf("no relevant documents: %w", domain.ErrNotFound)
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nProvide a comprehensive answer based on the context above, citing sources with (Source N).",
		contextBlock(hits), query)
	text, err := c.llm.Generate(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return domain.Answer{}, err
	}

	sources := make([]domain.Source, len(hits))
	for i, hit := range hits {
		sources[i] = domain.Source{URL: hit.Payload.URL, Title: hit.Payload.Title, Score: hit.Score}
	}
	return domain.Answer{
		Text:    ResolveCitations(text, sources),
		Sources: sources,
		Metadata: map[string]any{
			"model":                   c.llm.Model(),
			"context_documents_count": len(hits),
		},
	}, nil
}

// ContentSummary produces a narrative summary of freshly indexed
// pages. A generation failure degrades to the local frequency
// summarizer instead of failing the crawl.
func (c *Composer) ContentSummary(ctx context.Context, pages []domain.Page, site string) string {
	const maxPages = 5
	var b strings.Builder
	for i, page := range pages {
		if i >= maxPages {
			break
		}
		excerpt := page.Markdown
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		fmt.Fprintf(&b, "Page: %s\n%s\n\n", page.Title, excerpt)
	}
	prompt := fmt.Sprintf("Summarize in 2-3 sentences what the website %s is about, based on these pages:\n\n%s", site, b.String())
	text, err := c.llm.Generate(ctx, "You summarize website content concisely for end users.", prompt)
	if err != nil {
		slog.Warn("content summary generation failed, using local summarizer", "site", site, "err", err)
		return c.fallback.Summarize(b.String(), 3)
	}
	return strings.TrimSpace(text)
}

func contextBlock(hits []domain.SearchHit) string {
	parts := make([]string, len(hits))
	for i, hit := range hits {
		text := hit.Payload.Markdown
		if len(text) > maxContextChars {
			text = text[:maxContextChars]
		}
		position := ""
		if hit.Payload.Total > 0 {
			position = fmt.Sprintf(" (Chunk %d of %d)", hit.Payload.ChunkIndex+1, hit.Payload.Total)
		}
		parts[i] = fmt.Sprintf("Source %d (URL: %s)%s:\n%s", i+1, hit.Payload.URL, position, text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
