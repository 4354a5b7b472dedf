package domain

import (
	"fmt"
	"strings"
)

// Filter restricts a search to exact metadata values. Empty fields do not constrain.
type Filter struct {
	BusinessName string
}

// BusinessFilter returns a validated filter scoped to one business.
func BusinessFilter(name string) (Filter, error) {
	f := Filter{BusinessName: strings.TrimSpace(name)}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// Validate rejects filters that cannot scope a search to a business.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.BusinessName) == "" {
		return fmt.Errorf("%w: business name is empty", ErrInvalidFilter)
	}
	return nil
}

// Matches reports whether m satisfies every set field of f.
func (f Filter) Matches(m Metadata) bool {
	if f.BusinessName != "" && m.BusinessName != f.BusinessName {
		return false
	}
	return true
}

// SearchRequest is a similarity query against a vector store.
type SearchRequest struct {
	Vector    []float64
	Filter    Filter
	Threshold float64
	Limit     int
}

// SearchResult represents a matching chunk with a similarity score in [0, 1].
type SearchResult struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64
}

// RatingCategory selects reviews by sentiment. The zero value applies no filter.
type RatingCategory string

const (
	RatingAny      RatingCategory = ""
	RatingPositive RatingCategory = "positive"
	RatingNegative RatingCategory = "negative"
)

// ParseRatingCategory accepts "", "none", "positive" and "negative".
func ParseRatingCategory(s string) (RatingCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "any":
		return RatingAny, nil
	case "positive":
		return RatingPositive, nil
	case "negative":
		return RatingNegative, nil
	}
	return RatingAny, fmt.Errorf("%w: unknown rating category %q", ErrInvalidInput, s)
}

// Accepts reports whether a review rating falls into the category.
// Unknown ratings are accepted only by RatingAny.
func (c RatingCategory) Accepts(r NullFloat) bool {
	switch c {
	case RatingPositive:
		return r.Valid && r.Value >= 4
	case RatingNegative:
		return r.Valid && r.Value <= 2
	}
	return true
}
