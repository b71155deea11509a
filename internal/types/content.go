// Package types holds the data shared between the generation pipeline, the
// approval machine and the storage layer.
package types

import (
	"encoding/base64"
	"fmt"
)

// Media is one inline image pulled out of an uploaded document.
// Data is base64 encoded, as the generation service expects it.
type Media struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// NewMedia encodes raw bytes as a Media item.
func NewMedia(mimeType string, raw []byte) Media {
	return Media{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(raw)}
}

// Bytes decodes the base64 payload.
func (m Media) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload for %s: %w", m.MIMEType, err)
	}
	return b, nil
}

// ExtractedContent is the text and inline media of one uploaded file.
type ExtractedContent struct {
	Text  string  `json:"text"`
	Media []Media `json:"images"`
}
