package types

import "baagent/internal/backlog"

// Bundle is the complete set of artifacts produced by one generation run.
// It is immutable once assembled.
type Bundle struct {
	TRD     string          `json:"trd"`
	HLD     string          `json:"hld"`
	LLD     string          `json:"lld"`
	Media   []Media         `json:"images"`
	Backlog []*backlog.Node `json:"backlog"`
}

// Normalized returns a copy whose slices are never nil, so the bundle always
// serializes "images" and "backlog" as arrays.
func (b Bundle) Normalized() Bundle {
	if b.Media == nil {
		b.Media = []Media{}
	}
	if b.Backlog == nil {
		b.Backlog = []*backlog.Node{}
	}
	return b
}
