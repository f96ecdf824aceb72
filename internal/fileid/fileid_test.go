package fileid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDocID_Deterministic(t *testing.T) {
	id1 := DocID("/foo/bar.pdf")
	id2 := DocID("/foo/bar.pdf")
	if id1 != id2 {
		t.Errorf("same source should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, filePrefix) {
		t.Errorf("ID should have prefix %q: got %q", filePrefix, id1)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id1, filePrefix)); err != nil {
		t.Errorf("unexpected ID length: %q", id1)
	}
}

func TestDocID_Normalized(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"trailing slash", "/foo/bar", "/foo/bar/"},
		{"dot segment", "/foo/bar", "/foo/./bar"},
		{"url host case", "https://Example.com/page", "https://example.com/page"},
		{"url fragment", "https://example.com/page#top", "https://example.com/page"},
		{"url empty path", "https://example.com", "https://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if DocID(tt.a) != DocID(tt.b) {
				t.Errorf("%q and %q should give the same ID", tt.a, tt.b)
			}
		})
	}
}

func TestDocID_Distinct(t *testing.T) {
	if DocID("/foo/bar.pdf") == DocID("/foo/baz.pdf") {
		t.Error("different paths should give different IDs")
	}
	if DocID("a.pdf", "b.pdf") == DocID("b.pdf", "a.pdf") {
		t.Error("source order should matter")
	}
	if DocID("ab", "c") == DocID("a", "bc") {
		t.Error("source boundaries should matter")
	}
	if !strings.HasPrefix(DocID("https://example.com"), webPrefix) {
		t.Error("URL sources should use the web prefix")
	}
}
