package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// ReviewRecord is one row of the review dataset.
type ReviewRecord struct {
	BusinessName      string
	Review            string
	Response          string
	Rating            NullFloat
	AvgBusinessRating NullFloat
	NumOfReviews      NullInt
}

// NullFloat is an optional number resolved once at load time.
// An invalid value means "unknown" and never matches a specific-value filter.
type NullFloat struct {
	Value float64
	Valid bool
}

// Float returns a known value.
func Float(v float64) NullFloat { return NullFloat{Value: v, Valid: true} }

// ParseFloat parses s, returning an unknown value when s is blank, not
// numeric or not finite ("NaN", "inf" and their spellings).
func ParseFloat(s string) NullFloat {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return NullFloat{}
	}
	return Float(v)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (n NullFloat) String() string {
	if !n.Valid {
		return "unknown"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid || !finite(n.Value) {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// NullInt is an optional integer, see NullFloat.
type NullInt struct {
	Value int
	Valid bool
}

// Int returns a known value.
func Int(v int) NullInt { return NullInt{Value: v, Valid: true} }

// ParseInt accepts integer text and integral floats such as "12.0".
func ParseInt(s string) NullInt {
	if v, err := strconv.Atoi(s); err == nil {
		return Int(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) || math.Abs(f) > math.MaxInt32 || f != math.Trunc(f) {
		return NullInt{}
	}
	return Int(int(f))
}

func (n NullInt) String() string {
	if !n.Valid {
		return "unknown"
	}
	return strconv.Itoa(n.Value)
}

func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullInt{}
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Int(v)
	return nil
}

// Metadata is copied verbatim from the source record onto every document and chunk.
type Metadata struct {
	BusinessName      string    `json:"business_name"`
	Rating            NullFloat `json:"rating"`
	AvgBusinessRating NullFloat `json:"avg_business_rating"`
	NumOfReviews      NullInt   `json:"num_of_reviews"`
	DocumentID        string    `json:"document_id"`
	RowIndex          int       `json:"row_index"`
}

// Document is a retrievable unit built from one review record.
type Document struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Chunk is a contiguous span of a document's content. Start and End are rune offsets.
type Chunk struct {
	ID       string
	Text     string
	Index    int
	Start    int
	End      int
	Metadata Metadata
}

// IndexedVector is what a vector store persists per chunk.
type IndexedVector struct {
	ID       string
	Vector   []float64
	Text     string
	Metadata Metadata
}
