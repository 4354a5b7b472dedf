package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"reviewrag/internal/domain"
	"reviewrag/internal/logger"
)

// OverFetchFactor multiplies k when a rating filter will discard candidates
// after ranking. It is best effort: fewer than k results are a valid outcome.
const OverFetchFactor = 3

// Config holds query-time defaults.
type Config struct {
	K              int
	ScoreThreshold float64
	MaxSentences   int
}

// ReviewService answers sentiment-aware questions about one business at a time.
type ReviewService struct {
	searcher   Searcher
	embedder   domain.Embedder
	summarizer domain.Summarizer
	answerer   domain.Answerer
	cfg        Config
	log        *zap.Logger
}

// Answer is the outcome of Ask. Text is empty when no review matched.
type Answer struct {
	Reviews []domain.SearchResult
	Text    string
}

// NewReviewService wires the service. summarizer and answerer may be nil when
// Summarize or Ask are not used.
func NewReviewService(searcher Searcher, embedder domain.Embedder, summarizer domain.Summarizer, answerer domain.Answerer, cfg Config, log *zap.Logger) *ReviewService {
	if cfg.K < 1 {
		cfg.K = 5
	}
	if cfg.MaxSentences < 1 {
		cfg.MaxSentences = 5
	}
	return &ReviewService{
		searcher:   searcher,
		embedder:   embedder,
		summarizer: summarizer,
		answerer:   answerer,
		cfg:        cfg,
		log:        logger.OrNop(log),
	}
}

// Search returns at most k reviews of business in retrieval-rank order. A
// rating category is applied after ranking on an over-fetched candidate set.
// k <= 0 uses the configured default.
func (s *ReviewService) Search(ctx context.Context, business, query string, k int, category domain.RatingCategory) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = s.cfg.K
	}
	fetch := k
	if category != domain.RatingAny {
		fetch = k * OverFetchFactor
	}
	r, err := NewRetriever(s.searcher, s.embedder, business, s.cfg.ScoreThreshold, fetch)
	if err != nil {
		return nil, err
	}
	candidates, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SearchResult, 0, min(k, len(candidates)))
	for _, c := range candidates {
		if len(out) == k {
			break
		}
		if category.Accepts(c.Metadata.Rating) {
			out = append(out, c)
		}
	}
	s.log.Debug("search",
		zap.String("business", r.Business()),
		zap.String("rating", string(category)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(out)),
	)
	return out, nil
}

// Summarize condenses the top reviews of business. It returns
// domain.ErrNothingToSummarize without calling the summarizer when no review
// matches, and also when the summarizer produces no text.
func (s *ReviewService) Summarize(ctx context.Context, business string, k int, category domain.RatingCategory) (string, error) {
	results, err := s.Search(ctx, business, "", k, category)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", domain.ErrNothingToSummarize
	}
	summary, err := s.summarizer.Summarize(ctx, texts(results), s.cfg.MaxSentences)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(summary) == "" {
		return "", domain.ErrNothingToSummarize
	}
	return summary, nil
}

// Ask retrieves the reviews most relevant to question and lets the answerer
// respond from them. No model call is made when nothing matches.
func (s *ReviewService) Ask(ctx context.Context, business, question string) (Answer, error) {
	results, err := s.Search(ctx, business, question, s.cfg.K, domain.RatingAny)
	if err != nil {
		return Answer{}, err
	}
	ans := Answer{Reviews: results}
	if len(results) == 0 || s.answerer == nil {
		return ans, nil
	}
	ans.Text, err = s.answerer.Answer(ctx, question, texts(results))
	if err != nil {
		return ans, err
	}
	return ans, nil
}

func texts(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}
