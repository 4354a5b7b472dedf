package domain

import "errors"

// Query-time errors are returned to the caller as is; an empty result set is
// a nil error with zero results, never one of these.
var (
	// ErrIndexNotReady indicates a search before the index was populated.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrInvalidFilter indicates a search filter that cannot scope to a business.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbedding indicates the embedder rejected its input.
	ErrEmbedding = errors.New("embedding failed")

	// ErrPersistence indicates a storage read or write failure.
	ErrPersistence = errors.New("persistence failure")

	// ErrDimensionMismatch indicates a vector whose size differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIngestionFailed indicates too many items failed during bulk population.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrNothingToSummarize indicates a summary was requested over zero reviews.
	ErrNothingToSummarize = errors.New("nothing to summarize")
)
