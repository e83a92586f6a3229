package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"astra/internal/domain"
)

// TextChunker splits markdown into bounded chunks along paragraph
// boundaries, seeding each new chunk with a sentence-aligned overlap
// region taken from the tail of the previous one.
type TextChunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
	paragraphs   *regexp.Regexp
	boundary     *regexp.Regexp
}

// Periods inside these must not count as sentence boundaries. Each
// replacement keeps the byte length unchanged so offsets found on the
// protected text can slice the original.
var abbreviations = []string{"Mr.", "Mrs.", "Ms.", "Dr.", "Prof.", "e.g.", "i.e.", "etc.", "vs."}

func NewTextChunker(chunkSize, chunkOverlap, minChunkSize int) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if minChunkSize < 0 {
		minChunkSize = 0
	}
	return &TextChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		minChunkSize: minChunkSize,
		paragraphs:   regexp.MustCompile(`\n{2,}`),
		boundary:     regexp.MustCompile(`[.!?]\s+`),
	}
}

// Chunk splits text into overlapping chunks. Deterministic for a given
// configuration; empty or whitespace-only input yields nil.
func (c *TextChunker) Chunk(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var texts []string
	current := ""
	for _, paragraph := range c.paragraphs.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if current != "" && len(current)+len(paragraph)+2 > c.chunkSize {
			if len(current) >= c.minChunkSize {
				texts = append(texts, current)
			}
			if c.chunkOverlap > 0 {
				current = c.overlapRegion(current) + "\n\n" + paragraph
			} else {
				current = paragraph
			}
		} else if current == "" {
			current = paragraph
		} else {
			current += "\n\n" + paragraph
		}
	}
	if current != "" && len(current) >= c.minChunkSize {
		texts = append(texts, current)
	}

	// Input never reached minChunkSize: keep it whole rather than drop it.
	if len(texts) == 0 {
		texts = []string{strings.TrimSpace(text)}
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{Text: t, Index: i, Total: len(texts)}
	}
	return chunks
}

// overlapRegion returns the tail of a closed chunk used to seed the
// next one, aligned to start at a sentence boundary.
func (c *TextChunker) overlapRegion(closed string) string {
	n := c.chunkOverlap
	if looksLikeCode(closed) {
		// Code blocks lose meaning when split tightly; carry more context.
		n += n / 2
	}
	if n >= len(closed) {
		return closed
	}
	tail := closed[len(closed)-n:]

	protected := tail
	for _, abbr := range abbreviations {
		protected = strings.ReplaceAll(protected, abbr, strings.ReplaceAll(abbr, ".", "\x01"))
	}
	for _, loc := range c.boundary.FindAllStringIndex(protected, -1) {
		r, _ := utf8.DecodeRuneInString(protected[loc[1]:])
		if unicode.IsUpper(r) {
			return tail[loc[1]:]
		}
	}
	return tail
}

func looksLikeCode(s string) bool {
	return strings.Contains(s, "```") || strings.Contains(s, "\n    ") || strings.Contains(s, "\n\t")
}
