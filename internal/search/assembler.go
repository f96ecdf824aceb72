package search

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Separator joins retrieved segments in the assembled context.
const Separator = "\n\n"

// Assembler concatenates retrieved segments into one context string.
// MaxLen (in characters) bounds the output; zero means unbounded.
type Assembler struct {
	MaxLen int
}

// NewAssembler returns an assembler that keeps the context within maxLen characters.
func NewAssembler(maxLen int) *Assembler {
	return &Assembler{MaxLen: maxLen}
}

// Assemble joins the segment texts in retrieval order. With a max length, whole
// leading segments are kept and the first one that does not fit is cut to the
// remaining budget; later segments are dropped.
func (a *Assembler) Assemble(hits []models.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	if a == nil || a.MaxLen <= 0 {
		parts := make([]string, len(hits))
		for i, h := range hits {
			parts[i] = h.Text
		}
		return strings.Join(parts, Separator)
	}

	var b strings.Builder
	remaining := a.MaxLen
	sepLen := len([]rune(Separator))
	for i, h := range hits {
		if i > 0 {
			if remaining <= sepLen {
				break
			}
			b.WriteString(Separator)
			remaining -= sepLen
		}
		text := []rune(h.Text)
		if len(text) > remaining {
			b.WriteString(string(text[:remaining]))
			break
		}
		b.WriteString(h.Text)
		remaining -= len(text)
	}
	return b.String()
}
