package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"reviewrag/internal/domain"
)

// DefaultDimension matches the output size of small sentence-transformer models.
const DefaultDimension = 384

// DefaultMaxInputRunes bounds the text accepted by Embed.
const DefaultMaxInputRunes = 8192

// Embedder implements a deterministic feature-hashing vectorizer.
// Word unigrams and bigrams are hashed into a fixed number of buckets, so the
// dimension never depends on the corpus.
type Embedder struct {
	dimension     int
	maxInputRunes int
	tokenPattern  *regexp.Regexp
	stopwords     map[string]struct{}
}

// Option configures the embedder.
type Option func(*Embedder)

// WithDimension sets the vector size.
func WithDimension(d int) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.dimension = d
		}
	}
}

// WithMaxInputRunes sets the largest accepted input.
func WithMaxInputRunes(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.maxInputRunes = n
		}
	}
}

// NewEmbedder creates a hashing embedder.
func NewEmbedder(opts ...Option) *Embedder {
	e := &Embedder{
		dimension:     DefaultDimension,
		maxInputRunes: DefaultMaxInputRunes,
		tokenPattern:  regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:     defaultStopwords(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed embedding for the given text. Text without
// tokens yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if n := utf8.RuneCountInString(text); n > e.maxInputRunes {
		return nil, fmt.Errorf("%w: input of %d runes exceeds limit of %d", domain.ErrEmbedding, n, e.maxInputRunes)
	}
	vec := make([]float64, e.dimension)
	tokens := e.tokenize(text)
	for i, tok := range tokens {
		vec[e.bucket(tok)] += 1.0
		if i > 0 {
			vec[e.bucket(tokens[i-1]+" "+tok)] += 0.5
		}
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) bucket(feature string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum64() % uint64(e.dimension))
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
