// Package summarizer produces short extractive overviews of a corpus.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/chunker"
	"docqa/internal/domain"
)

// DefaultMaxSentences is used when a non-positive sentence count is requested.
const DefaultMaxSentences = 5

var _ domain.Summarizer = (*FrequencySummarizer)(nil)

// FrequencySummarizer ranks sentences by the normalised frequency of their
// content words and keeps the best ones in their original order.
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    stopwords(),
	}
}

// Summarize returns up to maxSentences sentences of text joined by spaces.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := chunker.SplitSentences(chunker.NormalizeWhitespace(text))
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " "), nil
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = s.contentTokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, tok := range tokens[i] {
			score += freq[tok] / maxF
		}
		// dampen long sentences
		if n := len(tokens[i]); n > 0 {
			score /= math.Sqrt(float64(n))
		}
		scores[i] = ranked{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) contentTokens(text string) []string {
	var out []string
	for _, tok := range s.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "you", "your", "each", "may",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
