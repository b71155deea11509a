// Package extract reads requirements documents into text plus embedded
// images.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"baagent/internal/types"
)

// ErrUnsupportedType is returned for anything other than .docx and .pdf.
var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor dispatches on the file extension.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Supported reports whether filename has an extension Extract understands.
func Supported(filename string) bool {
	switch FileType(filename) {
	case "docx", "pdf":
		return true
	}
	return false
}

// FileType returns the lowercased extension without its dot.
func FileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// Extract returns the document's text and, for DOCX, its embedded images.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (types.ExtractedContent, error) {
	if err := ctx.Err(); err != nil {
		return types.ExtractedContent{}, err
	}
	switch FileType(filename) {
	case "docx":
		content, err := extractDOCX(data)
		if err != nil {
			return types.ExtractedContent{}, fmt.Errorf("error reading docx file: %w", err)
		}
		return content, nil
	case "pdf":
		text, err := extractPDF(data)
		if err != nil {
			return types.ExtractedContent{}, fmt.Errorf("error reading pdf file: %w", err)
		}
		return types.ExtractedContent{Text: text, Media: []types.Media{}}, nil
	default:
		return types.ExtractedContent{}, ErrUnsupportedType
	}
}
