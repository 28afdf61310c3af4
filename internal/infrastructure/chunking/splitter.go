package chunking

import (
	"strings"
	"unicode"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 150
)

// Splitter cuts text into rune windows of at most ChunkSize with Overlap runes
// shared between neighbours. Cuts prefer a paragraph break, then a sentence
// end, then whitespace, and fall back to a hard cut.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(doc domain.Document) []domain.Segment {
	runes := []rune(doc.Text)
	n := len(runes)
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	out := make([]domain.Segment, 0, n/(s.ChunkSize-s.Overlap)+1)
	position := 0
	for start := 0; start < n; {
		end := start + s.ChunkSize
		if end >= n {
			end = n
		} else {
			end = s.cutPoint(runes, start, end)
		}

		// Blank windows inside a document are kept so the ranges stay
		// contiguous.
		out = append(out, domain.Segment{
			DocumentName: doc.Name,
			Text:         string(runes[start:end]),
			Position:     position,
			Start:        start,
			End:          end,
		})
		position++
		if end == n {
			break
		}
		start = s.nextStart(runes, end)
	}
	return out
}

// cutPoint returns the exclusive end of the window starting at start. The cut
// never lands before minCut so every window is longer than the overlap and
// the loop always advances.
func (s *Splitter) cutPoint(runes []rune, start, limit int) int {
	minCut := start + s.ChunkSize/2
	if floor := start + s.Overlap + 1; floor > minCut {
		minCut = floor
	}
	if minCut > limit {
		minCut = limit
	}

	if p := lastMatch(minCut, limit, func(p int) bool {
		return p >= 2 && runes[p-1] == '\n' && runes[p-2] == '\n'
	}); p > 0 {
		return p
	}
	if p := lastMatch(minCut, limit, func(p int) bool {
		return isSentenceEnd(runes[p-1]) && unicode.IsSpace(runes[p])
	}); p > 0 {
		return p
	}
	if p := lastMatch(minCut, limit, func(p int) bool {
		return unicode.IsSpace(runes[p]) && !unicode.IsSpace(runes[p-1])
	}); p > 0 {
		return p
	}
	return limit
}

// nextStart steps back Overlap runes from end and then forward to the next
// word start, staying strictly before end so neighbours always share text.
func (s *Splitter) nextStart(runes []rune, end int) int {
	if s.Overlap == 0 {
		return end
	}
	next := end - s.Overlap
	for p := next; p < end; p++ {
		if p == 0 || (unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p])) {
			return p
		}
	}
	return next
}

func lastMatch(from, to int, match func(int) bool) int {
	for p := to; p >= from && p > 0; p-- {
		if match(p) {
			return p
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';':
		return true
	default:
		return false
	}
}
