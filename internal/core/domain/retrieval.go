package domain

import "strings"

type RetrievedSegment struct {
	DocumentName string  `json:"document_name"`
	Text         string  `json:"text"`
	Position     int     `json:"position"`
	Seq          int     `json:"seq"`
	Score        float64 `json:"score"`
}

// RetrievalResult is what the retriever hands to prompt composition. An empty
// Context means no grounding is available.
type RetrievalResult struct {
	Context    string             `json:"context"`
	Sources    []string           `json:"sources"`
	Segments   []RetrievedSegment `json:"segments,omitempty"`
	IndexState IndexState         `json:"index_state"`
	Degraded   bool               `json:"degraded"`
}

func (r RetrievalResult) EvidenceSource() string {
	return JoinSources(r.Sources)
}

func JoinSources(sources []string) string {
	return strings.Join(sources, ", ")
}
