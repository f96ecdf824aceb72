// Package models defines core data structures for documents, segments, index entries, and conversations.
package models

import "time"

// SourceKind identifies which adapter produced a Document.
type SourceKind string

const (
	SourcePDF  SourceKind = "pdf"
	SourceWeb  SourceKind = "web"
	SourceFile SourceKind = "file"
)

// Document is raw text extracted from one or more sources, reduced to a single body
// before chunking. It is discarded once segments are produced.
//
// Source is a display label. Sources lists every input in order, including ones that
// yielded no text; Sections holds the non-empty text of each input so segments can
// name the file they came from. Documents built by hand may leave both empty, in
// which case Text is chunked as one section labelled Source.
type Document struct {
	ID       string     `json:"id"`
	Source   string     `json:"source"`
	Sources  []string   `json:"sources,omitempty"`
	Kind     SourceKind `json:"kind"`
	Text     string     `json:"text"`
	Sections []Section  `json:"sections,omitempty"`
}

// Section is the text extracted from one input of a Document.
type Section struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Segment is a contiguous slice of a Document's text.
type Segment struct {
	Text    string `json:"text"`
	Ordinal int    `json:"ordinal"`
	Source  string `json:"source"`
}

// IndexEntry is a stored (vector, text, metadata) triple. Entries are never mutated after build.
type IndexEntry struct {
	Vector   []float32         `json:"-"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Hit is one retrieved segment with its similarity score.
type Hit struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Corpus records an ingested collection and where its index snapshot lives.
type Corpus struct {
	Name       string     `json:"name"`
	Kind       SourceKind `json:"kind"`
	Sources    []string   `json:"sources"`
	Segments   int        `json:"segments"`
	Dimensions int        `json:"dimensions"`
	IndexPath  string     `json:"index_path"`
	IngestedAt time.Time  `json:"ingested_at"`
}
