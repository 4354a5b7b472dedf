// Package document turns review records into retrievable documents.
package document

import (
	"strconv"

	"github.com/google/uuid"

	"reviewrag/internal/domain"
)

// Namespace seeds the name-based UUIDs of documents and chunks.
var Namespace = uuid.MustParse("6f1c2f8e-3a59-4d0e-9a43-2b7d0c1e5a90")

// Content renders the fixed review/response template.
func Content(review, response string) string {
	return "Review: " + review + " | Response: " + response
}

// ID returns the stable document id of a dataset row.
func ID(row int) string {
	return uuid.NewSHA1(Namespace, []byte("row:"+strconv.Itoa(row))).String()
}

// Build converts one dataset row into a document. It has no side effects.
func Build(rec domain.ReviewRecord, row int) domain.Document {
	id := ID(row)
	return domain.Document{
		ID:      id,
		Content: Content(rec.Review, rec.Response),
		Metadata: domain.Metadata{
			BusinessName:      rec.BusinessName,
			Rating:            rec.Rating,
			AvgBusinessRating: rec.AvgBusinessRating,
			NumOfReviews:      rec.NumOfReviews,
			DocumentID:        id,
			RowIndex:          row,
		},
	}
}

// BuildAll converts records in order, using the slice position as the row index.
func BuildAll(recs []domain.ReviewRecord) []domain.Document {
	docs := make([]domain.Document, len(recs))
	for i, rec := range recs {
		docs[i] = Build(rec, i)
	}
	return docs
}
