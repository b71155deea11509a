// Package notify sends approval request emails through Azure Communication
// Services.
package notify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when connection string, sender or recipient
// is missing.
var ErrNotConfigured = errors.New("azure communication services is not configured")

// Connection is a parsed ACS connection string.
type Connection struct {
	Endpoint  string
	AccessKey []byte
}

// ParseConnectionString reads "endpoint=https://...;accesskey=BASE64".
// Keys are case-insensitive and order does not matter.
func ParseConnectionString(s string) (Connection, error) {
	var c Connection
	var rawKey string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Connection{}, fmt.Errorf("malformed connection string segment %q", k)
		}
		switch strings.ToLower(k) {
		case "endpoint":
			c.Endpoint = strings.TrimRight(v, "/")
		case "accesskey":
			rawKey = v
		}
	}
	if c.Endpoint == "" || rawKey == "" {
		return Connection{}, errors.New("connection string needs endpoint and accesskey")
	}
	key, err := base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return Connection{}, fmt.Errorf("access key is not base64: %w", err)
	}
	c.AccessKey = key
	return c, nil
}
