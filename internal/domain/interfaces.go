package domain

import "context"

// Embedder converts free text into a fixed-dimension vector.
// Empty text must yield a valid vector rather than an error.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Summarizer produces a brief summary of the provided reviews.
type Summarizer interface {
	Summarize(ctx context.Context, reviews []string, maxSentences int) (string, error)
}

// Answerer answers a question from an ordered list of review texts.
type Answerer interface {
	Answer(ctx context.Context, question string, reviews []string) (string, error)
}
