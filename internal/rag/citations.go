package rag

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"astra/internal/domain"
)

var (
	citationSpan   = regexp.MustCompile(`\((Source\s+\d+(?:\s*,\s*(?:Source\s+)?\d+)*)\)`)
	citationNumber = regexp.MustCompile(`\d+`)
)

const maxDisplayTitle = 60

// ResolveCitations rewrites "(Source N)" markers emitted by the model
// into markdown links against the 1-based sources list. A span naming
// any unknown source number is left untouched.
func ResolveCitations(text string, sources []domain.Source) string {
	return citationSpan.ReplaceAllStringFunc(text, func(span string) string {
		numbers := citationNumber.FindAllString(span, -1)
		links := make([]string, 0, len(numbers))
		for _, raw := range numbers {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > len(sources) {
				return span
			}
			src := sources[n-1]
			links = append(links, fmt.Sprintf("[%s](%s)", displayTitle(src), src.URL))
		}
		return "(" + strings.Join(links, ", ") + ")"
	})
}

// displayTitle picks a readable label for a source: its page title,
// then a titleized trailing path segment, then the bare domain.
func displayTitle(src domain.Source) string {
	title := strings.TrimSpace(src.Title)
	if title == "" {
		title = titleFromURL(src.URL)
	}
	if len(title) > maxDisplayTitle {
		title = title[:maxDisplayTitle-3] + "..."
	}
	return title
}

func titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	segment := strings.Trim(u.Path, "/")
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	if segment == "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return titleize(segment)
}

func titleize(segment string) string {
	if idx := strings.LastIndex(segment, "."); idx > 0 {
		segment = segment[:idx]
	}
	words := strings.FieldsFunc(segment, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
