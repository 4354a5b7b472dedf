// Package dataset reads the tabular review dataset.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"reviewrag/internal/domain"
)

// Column names of the review dataset.
const (
	ColBusinessName = "business_name"
	ColReview       = "review"
	ColResponse     = "response"
	ColRating       = "rating"
	ColAvgRating    = "avg_rating"
	ColNumReviews   = "num_of_reviews"
)

var requiredColumns = []string{ColBusinessName, ColReview, ColResponse, ColRating, ColAvgRating, ColNumReviews}

// nullMarkers are cell values exported by dataframes for missing data.
var nullMarkers = map[string]struct{}{"": {}, "nan": {}, "NaN": {}, "null": {}, "None": {}}

// LoadCSV reads all review rows from the CSV file at path.
func LoadCSV(path string) ([]domain.ReviewRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads review rows with a header line. Row order is preserved and
// no row is dropped; missing review or response text becomes "".
func ReadCSV(r io.Reader) ([]domain.ReviewRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("dataset is missing column %q", name)
		}
	}

	var out []domain.ReviewRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		cell := func(name string) string {
			i := cols[name]
			if i >= len(row) {
				return ""
			}
			v := strings.TrimSpace(row[i])
			if _, null := nullMarkers[v]; null {
				return ""
			}
			return v
		}
		out = append(out, domain.ReviewRecord{
			BusinessName:      cell(ColBusinessName),
			Review:            cell(ColReview),
			Response:          cell(ColResponse),
			Rating:            domain.ParseFloat(cell(ColRating)),
			AvgBusinessRating: domain.ParseFloat(cell(ColAvgRating)),
			NumOfReviews:      domain.ParseInt(cell(ColNumReviews)),
		})
	}
	return out, nil
}
