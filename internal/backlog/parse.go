package backlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ResponseKey is the top-level key the backlog agent is asked to emit.
const ResponseKey = "backlog"

// ParseState tags the outcome of decoding agent output.
type ParseState int

const (
	// Parsed means the payload was a JSON object whose ResponseKey, if present,
	// held an array.
	Parsed ParseState = iota
	// Unparseable means the output was not a JSON object or the value under
	// ResponseKey was not an array. It coerces to an empty backlog.
	Unparseable
)

func (s ParseState) String() string {
	if s == Parsed {
		return "parsed"
	}
	return "unparseable"
}

// ErrNotArray is reported when the value under ResponseKey is not a JSON array.
var ErrNotArray = errors.New("backlog value is not an array")

// Payload is the decoded backlog agent output.
type Payload struct {
	State ParseState
	Nodes []*Node
	// Err explains why the payload is Unparseable.
	Err error
}

// Items returns the backlog epics, or an empty non-nil slice when unparseable.
func (p Payload) Items() []*Node {
	if p.State != Parsed || p.Nodes == nil {
		return []*Node{}
	}
	return p.Nodes
}

// Parse decodes the backlog agent's JSON output. It never fails: anything that
// is not {"backlog": [...]} becomes an Unparseable payload.
func Parse(raw string) Payload {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{State: Unparseable, Err: errors.New("empty backlog output")}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return Payload{State: Unparseable, Err: fmt.Errorf("invalid backlog JSON: %w", err)}
	}

	value, ok := top[ResponseKey]
	if !ok {
		// No key means no backlog, not a malformed one.
		return Payload{State: Parsed, Nodes: []*Node{}}
	}

	trimmed := strings.TrimSpace(string(value))
	if !strings.HasPrefix(trimmed, "[") {
		return Payload{State: Unparseable, Err: ErrNotArray}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(value, &elems); err != nil {
		return Payload{State: Unparseable, Err: fmt.Errorf("invalid backlog array: %w", err)}
	}

	nodes := make([]*Node, 0, len(elems))
	for _, e := range elems {
		if isNull(e) {
			continue
		}
		n := &Node{}
		if err := json.Unmarshal(e, n); err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return Payload{State: Parsed, Nodes: normalize(nodes, KindEpic)}
}

// isNull reports whether a raw element is the JSON literal null.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decode reads an already id-assigned backlog array and fixes node kinds by
// depth.
func decode(data []byte) ([]*Node, error) {
	var nodes []*Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to decode backlog: %w", err)
	}
	return normalize(nodes, KindEpic), nil
}
