package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
// Scores are clamped and thresholded locally so every backend ranks alike.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.RWMutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// payload is the point payload. Metadata fields are flattened so that
// business_name can carry a keyword index.
type payload struct {
	Text string `json:"text"`
	domain.Metadata
}

// statusError reports a non-2xx response.
type statusError struct {
	method, url string
	code        int
	body        string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("%w: collection has %d, requested %d", domain.ErrDimensionMismatch, size, dimension)
		}
	case isNotFound(err):
		create := map[string]any{
			"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(), create, nil); err != nil {
			return fmt.Errorf("%w: create collection: %v", domain.ErrPersistence, err)
		}
		index := map[string]any{"field_name": "business_name", "field_schema": "keyword"}
		if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/index?wait=true", index, nil); err != nil {
			return fmt.Errorf("%w: create payload index: %v", domain.ErrPersistence, err)
		}
	default:
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return resp.Result.Count, nil
}

func (s *Storage) Upsert(ctx context.Context, items []domain.IndexedVector) error {
	dim := s.dim()
	if dim == 0 {
		return domain.ErrIndexNotReady
	}
	if err := vectorstore.CheckVectors(items, dim); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	points := make([]map[string]any, len(items))
	for i, it := range items {
		points[i] = map[string]any{
			"id":      it.ID,
			"vector":  it.Vector,
			"payload": payload{Text: it.Text, Metadata: it.Metadata},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	dim := s.dim()
	if dim == 0 {
		return nil, domain.ErrIndexNotReady
	}
	if len(req.Vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(req.Vector), dim)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = vectorstore.DefaultLimit
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
	}
	if req.Filter.BusinessName != "" {
		body["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "business_name", "match": map[string]any{"value": req.Filter.BusinessName}},
			},
		}
	}
	var resp struct {
		Result []struct {
			ID      any     `json:"id"`
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrPersistence, err)
	}
	candidates := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		candidates = append(candidates, domain.SearchResult{
			ID:       fmt.Sprint(r.ID),
			Text:     r.Payload.Text,
			Metadata: r.Payload.Metadata,
			Score:    vectorstore.ClampScore(r.Score),
		})
	}
	return vectorstore.Rank(candidates, req.Threshold, limit), nil
}

// Clear drops the collection. Init must be called again before use.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: drop collection: %v", domain.ErrPersistence, err)
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, url: url, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
