package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before chunking: CRLF becomes LF, trailing
// spaces are stripped from each line, runs of blank lines collapse to a single
// paragraph break, and the result is trimmed. Paragraph and line breaks survive so
// the chunker can still cut on them.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return strings.TrimSpace(b.String())
}
