package domain

import (
	"fmt"
	"time"
)

// Document is decoded source text. It only lives for the duration of an
// indexing run; segments are what the index keeps.
type Document struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Text string `json:"-"`
}

// Segment is a contiguous slice of a document's text. Start and End are rune
// offsets into Document.Text, Position is the ordinal inside the document and
// Seq is the ordinal across the whole indexing run.
type Segment struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
	Position     int    `json:"position"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Seq          int    `json:"seq"`
}

// LoadWarning records a document that could not be loaded or decoded.
type LoadWarning struct {
	Document string `json:"document"`
	Err      error  `json:"-"`
}

func (w LoadWarning) Error() string {
	if w.Err == nil {
		return "corpus load warning: " + w.Document
	}
	return "corpus load warning: " + w.Document + ": " + w.Err.Error()
}

// PartialListing is returned by a corpus listing together with the keys it
// could read. Each skipped path is carried as a warning.
type PartialListing struct {
	Skipped []LoadWarning
}

func (e *PartialListing) Error() string {
	return fmt.Sprintf("corpus listing skipped %d unreadable paths", len(e.Skipped))
}

type IndexState string

const (
	IndexAbsent   IndexState = "absent"
	IndexReady    IndexState = "ready"
	IndexBuilding IndexState = "building"
)

type IndexStatus struct {
	State      IndexState `json:"state"`
	Backend    string     `json:"backend"`
	Generation int64      `json:"generation"`
	Documents  int        `json:"documents"`
	Segments   int        `json:"segments"`
	Skipped    []string   `json:"skipped,omitempty"`
	BuiltAt    time.Time  `json:"built_at,omitempty"`
}
