// Package diagram cleans mermaid diagram code out of model output and renders
// it to PNG through a Kroki server.
package diagram

import (
	"regexp"
	"strings"
)

var mermaidFence = regexp.MustCompile("```mermaid[ \\t]*\\r?\\n([\\s\\S]*?)```")

// ExtractCode returns the mermaid source in raw model output.
//
// A ```mermaid fenced block wins and its trimmed interior is returned.
// Otherwise every bare ``` marker is stripped and the rest is trimmed, which
// handles models that forgot the language tag. Never fails.
func ExtractCode(raw string) string {
	if raw == "" {
		return ""
	}
	if m := mermaidFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.ReplaceAll(raw, "```", ""))
}
