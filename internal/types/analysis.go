package types

import (
	"time"
	"unicode/utf8"
)

// AnalysisStatusCompleted is the only status a saved analysis carries today.
const AnalysisStatusCompleted = "completed"

// PreviewLength bounds Analysis.Preview.
const PreviewLength = 500

// Analysis is a finished generation run as it is persisted.
type Analysis struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Status       string    `json:"status"`
	OriginalText string    `json:"originalText"`
	Results      *Bundle   `json:"results,omitempty"`
}

// AnalysisTitle names an analysis after its source file.
func AnalysisTitle(filename string) string {
	if filename == "" {
		return "Text Analysis"
	}
	return "Analysis of " + filename
}

// Preview shortens text to PreviewLength bytes on a rune boundary.
func Preview(text string) string {
	if len(text) <= PreviewLength {
		return text
	}
	cut := PreviewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// Document is an uploaded requirements file.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UploadDate time.Time `json:"uploadDate"`
	FileType   string    `json:"fileType"`
	Size       int64     `json:"size"`
	Status     string    `json:"status"`
	FilePath   string    `json:"-"`
	Content    string    `json:"content,omitempty"`
}

// DocumentStatusUploaded is the status of a freshly stored document.
const DocumentStatusUploaded = "uploaded"
