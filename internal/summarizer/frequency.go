package summarizer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"reviewrag/internal/domain"
)

// DefaultMaxSentences is used when the caller passes a non-positive limit.
const DefaultMaxSentences = 5

const (
	reviewPrefix   = "Review: "
	responseMarker = " | Response: "
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// FrequencySummarizer ranks review sentences by word frequency (stopwords filtered).
// It runs offline and needs no model.
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Summarize returns the highest scoring customer sentences in their original order.
// Owner responses are left out so the summary reflects what customers said.
// It returns domain.ErrNothingToSummarize when no customer text remains.
func (s *FrequencySummarizer) Summarize(_ context.Context, reviews []string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	var sentences []string
	seen := map[string]struct{}{}
	for _, r := range reviews {
		for _, sent := range splitSentences(customerText(r)) {
			key := strings.ToLower(sent)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return "", domain.ErrNothingToSummarize
	}
	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			if _, ok := s.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	maxSentences = min(maxSentences, len(scores))
	// Keep original order among selected
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

// customerText strips the document template and the owner response.
func customerText(doc string) string {
	doc = strings.TrimPrefix(doc, reviewPrefix)
	if i := strings.Index(doc, responseMarker); i >= 0 {
		doc = doc[:i]
	}
	return strings.TrimSpace(doc)
}

// splitSentences keeps a trailing fragment without terminal punctuation as
// its own sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if sent := strings.TrimSpace(text[loc[0]:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		rest = text[loc[1]:]
	}
	if tail := strings.TrimSpace(rest); tail != "" {
		out = append(out, tail+".")
	}
	return out
}

func (s *FrequencySummarizer) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "we", "my", "our", "you", "they", "their", "there", "here", "had", "has", "have", "not", "no",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
