// Package extract turns PDFs, spreadsheets, text files and web pages into documents.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types the extractor cannot read.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether files with extension ext (including the dot) can be extracted.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".xlsx", ".txt", ".md", ".rst", ".csv":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		pages, err := extractPDFPages(content)
		if err != nil {
			return "", err
		}
		return strings.Join(pages, "\n"), nil
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md", ".rst", ".csv":
		return extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}
