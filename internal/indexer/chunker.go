// Package indexer provides text chunking and corpus ingestion into vector indices.
package indexer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/internal/models"
)

// defaultSeparators are tried in order when looking for a place to cut a segment.
var defaultSeparators = []string{"\n\n", "\n", " "}

// Chunker splits text into overlapping segments of at most maxLen characters.
type Chunker struct {
	maxLen     int
	overlap    int
	separators [][]rune
}

// NewChunker creates a chunker with the given segment length and overlap (in characters).
// overlap must be smaller than maxLen.
func NewChunker(maxLen, overlap int) (*Chunker, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", maxLen)
	}
	if overlap < 0 || overlap >= maxLen {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", maxLen, overlap)
	}
	seps := make([][]rune, len(defaultSeparators))
	for i, s := range defaultSeparators {
		seps[i] = []rune(s)
	}
	return &Chunker{maxLen: maxLen, overlap: overlap, separators: seps}, nil
}

// MaxLen returns the maximum segment length in characters.
func (c *Chunker) MaxLen() int { return c.maxLen }

// Overlap returns the overlap between consecutive segments in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into segments. Segments are exact substrings of text, so concatenating
// them (without removing overlap) covers every character. Whitespace-only text yields nil.
func (c *Chunker) Split(source, text string) []models.Segment {
	spans := c.spans([]rune(text))
	if len(spans) == 0 {
		return nil
	}
	runes := []rune(text)
	segments := make([]models.Segment, 0, len(spans))
	for _, sp := range spans {
		chunk := string(runes[sp.start:sp.end])
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Text:    chunk,
			Ordinal: len(segments),
			Source:  source,
		})
	}
	return segments
}

type span struct {
	start, end int
}

func (c *Chunker) spans(runes []rune) []span {
	if strings.TrimSpace(string(runes)) == "" {
		return nil
	}
	n := len(runes)
	var out []span
	start := 0
	for start < n {
		end := start + c.maxLen
		if end >= n {
			out = append(out, span{start, n})
			break
		}
		cut, hard := c.findCut(runes, start, end)
		out = append(out, span{start, cut})
		start = c.nextStart(runes, start, cut, hard)
	}
	return out
}

// findCut returns the end of the segment starting at start. It prefers the last
// paragraph break, then line break, then space within [start, limit]; the cut must
// leave more than overlap characters of new text or the next separator is tried.
// When nothing qualifies the segment is cut hard at limit.
func (c *Chunker) findCut(runes []rune, start, limit int) (cut int, hard bool) {
	for _, sep := range c.separators {
		for i := limit - len(sep); i > start; i-- {
			if !hasPrefixAt(runes, i, sep) {
				continue
			}
			if i+len(sep)-start > c.overlap {
				return i + len(sep), false
			}
			break
		}
	}
	return limit, true
}

// nextStart picks where the following segment begins: as far back as overlap allows,
// moved forward to the first word boundary so overlaps do not begin mid-word.
// After a hard cut there are no boundaries to respect and the overlap is taken as is.
func (c *Chunker) nextStart(runes []rune, start, cut int, hard bool) int {
	lo := cut - c.overlap
	if lo <= start {
		lo = start + 1
	}
	if hard {
		return min(lo, cut)
	}
	for p := lo; p < cut; p++ {
		if unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return cut
}

func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	if i < 0 || i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
