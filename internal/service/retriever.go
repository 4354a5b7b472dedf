package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewrag/internal/domain"
)

// Searcher is the read side of the vector index.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error)
}

// Retriever is bound to one business, one score threshold and one result cap.
type Retriever struct {
	searcher  Searcher
	embedder  domain.Embedder
	filter    domain.Filter
	threshold float64
	k         int
}

// NewRetriever fails with domain.ErrInvalidFilter when business is empty.
func NewRetriever(searcher Searcher, embedder domain.Embedder, business string, threshold float64, k int) (*Retriever, error) {
	filter, err := domain.BusinessFilter(business)
	if err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidInput, k)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: score threshold %v outside [0, 1]", domain.ErrInvalidInput, threshold)
	}
	return &Retriever{searcher: searcher, embedder: embedder, filter: filter, threshold: threshold, k: k}, nil
}

// Business returns the business the retriever is scoped to.
func (r *Retriever) Business() string { return r.filter.BusinessName }

// Retrieve returns up to k reviews of the business ranked by similarity to
// query. A blank query searches for the business name itself.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		query = r.filter.BusinessName
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbedding) {
			err = fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
		}
		return nil, err
	}
	return r.searcher.Search(ctx, domain.SearchRequest{
		Vector:    vec,
		Filter:    r.filter,
		Threshold: r.threshold,
		Limit:     r.k,
	})
}
