// Package chunker splits review documents into bounded, overlapping chunks.
package chunker

import (
	"iter"
	"strconv"

	"github.com/google/uuid"

	"reviewrag/internal/document"
	"reviewrag/internal/domain"
)

// DefaultChunkSize is the default number of runes per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of runes shared by adjacent chunks.
const DefaultChunkOverlap = 50

// separators are tried group by group, largest boundary first. Within a group
// the latest boundary wins.
var separators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// Splitter cuts text on paragraph, line, sentence or word boundaries, and
// falls back to a hard cut when no boundary fits.
type Splitter struct {
	chunkSize int
	overlap   int
	seps      [][][]rune
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk size in runes.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in runes.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	s.seps = make([][][]rune, len(separators))
	for i, group := range separators {
		for _, sep := range group {
			s.seps[i] = append(s.seps[i], []rune(sep))
		}
	}
	return s
}

// ChunkSize returns the configured maximum chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Chunks yields the chunks of docs in document order. The sequence is lazy
// and can be ranged over more than once.
func (s *Splitter) Chunks(docs []domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		for _, doc := range docs {
			for _, c := range s.Split(doc) {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// Split cuts one document. Content that fits in one chunk yields exactly one
// chunk equal to the content, including empty content.
func (s *Splitter) Split(doc domain.Document) []domain.Chunk {
	text := []rune(doc.Content)
	n := len(text)
	if n <= s.chunkSize {
		return []domain.Chunk{newChunk(doc, 0, text, 0, n)}
	}

	var chunks []domain.Chunk
	start := 0
	for {
		if n-start <= s.chunkSize {
			chunks = append(chunks, newChunk(doc, len(chunks), text, start, n))
			return chunks
		}
		end := s.breakPoint(text, start)
		chunks = append(chunks, newChunk(doc, len(chunks), text, start, end))
		start = end - s.overlap
	}
}

// breakPoint returns the end of the chunk starting at start. The result lies
// past start+overlap so the next chunk always advances.
func (s *Splitter) breakPoint(text []rune, start int) int {
	hi := start + s.chunkSize
	lo := start + max(s.overlap, s.chunkSize/2)
	for _, group := range s.seps {
		best := -1
		for _, sep := range group {
			if cut := lastCut(text, sep, lo, hi); cut > best {
				best = cut
			}
		}
		if best > 0 {
			return best
		}
	}
	return hi
}

// lastCut finds the largest cut in (lo, hi] that directly follows sep.
func lastCut(text, sep []rune, lo, hi int) int {
	for i := hi - len(sep); i+len(sep) > lo && i >= 0; i-- {
		if hasPrefix(text[i:], sep) {
			return i + len(sep)
		}
	}
	return -1
}

func hasPrefix(text, prefix []rune) bool {
	if len(text) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if text[i] != r {
			return false
		}
	}
	return true
}

// ChunkID returns the stable id of the i-th chunk of a document.
func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(document.Namespace, []byte(docID+"#"+strconv.Itoa(index))).String()
}

func newChunk(doc domain.Document, index int, text []rune, start, end int) domain.Chunk {
	return domain.Chunk{
		ID:       ChunkID(doc.ID, index),
		Text:     string(text[start:end]),
		Index:    index,
		Start:    start,
		End:      end,
		Metadata: doc.Metadata,
	}
}
