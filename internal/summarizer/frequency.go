package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Frequency ranks sentences by normalized token frequency. It is the
// offline fallback used when the generative summary call fails.
type Frequency struct {
	sentences *regexp.Regexp
	tokens    *regexp.Regexp
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{
		sentences: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		tokens:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords: defaultStopwords(),
	}
}

// Summarize returns up to maxSentences of the input, highest scoring
// first by token frequency but emitted in original order.
func (s *Frequency) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := s.sentences.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}

	freq := map[string]float64{}
	maxFreq := 0.0
	for _, sent := range sentences {
		for _, tok := range s.tokenize(sent) {
			if _, stop := s.stopwords[tok]; stop {
				continue
			}
			freq[tok]++
			if freq[tok] > maxFreq {
				maxFreq = freq[tok]
			}
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokenize(sent)
		total := 0.0
		for _, tok := range toks {
			if maxFreq > 0 {
				total += freq[tok] / maxFreq
			}
		}
		if n := float64(len(toks)); n > 0 {
			total /= math.Sqrt(n) // damp long-sentence bias
		}
		ranked[i] = scored{i, total}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if maxSentences > len(ranked) {
		maxSentences = len(ranked)
	}
	keep := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		keep[i] = ranked[i].idx
	}
	sort.Ints(keep)

	out := make([]string, 0, len(keep))
	for _, idx := range keep {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

func (s *Frequency) tokenize(text string) []string {
	return s.tokens.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of",
		"in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
		"being", "it", "this", "that", "these", "those", "from", "up", "down", "over",
		"under", "than", "so", "such", "into", "about", "between", "through", "during",
		"before", "after", "out", "off", "own", "same", "too", "very", "can", "will",
		"just", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
