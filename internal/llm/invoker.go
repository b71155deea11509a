// Package llm is the single entry point for calls to the generation service.
// A call carries ordered prompt parts (text and inline media) and returns the
// model's text, optionally constrained to JSON.
package llm

import (
	"context"
	"errors"

	"baagent/internal/types"
)

// ErrEmptyResponse is returned when the service answered without any text.
var ErrEmptyResponse = errors.New("generation response missing expected content")

// Part is one element of a multi-part prompt: either text or inline media.
type Part struct {
	Text  string
	Media *types.Media
}

// TextPart builds a text prompt part.
func TextPart(s string) Part { return Part{Text: s} }

// MediaPart builds an inline media prompt part.
func MediaPart(m types.Media) Part { return Part{Media: &m} }

// IsMedia reports whether the part carries inline media.
func (p Part) IsMedia() bool { return p.Media != nil }

// Invoker calls the generation service. Every failure (transport, non-2xx,
// missing output) is returned as an error value. Implementations do not retry;
// deadlines come from ctx.
type Invoker interface {
	Invoke(ctx context.Context, parts []Part, expectJSON bool) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, parts []Part, expectJSON bool) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, parts []Part, expectJSON bool) (string, error) {
	return f(ctx, parts, expectJSON)
}
