package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrExtractionFailed = errors.New("extraction failed")
	ErrPlanningFailed   = errors.New("planning agent failed")
	ErrSpecialistFailed = errors.New("one or more specialist agents failed")
	ErrAssemblyFailed   = errors.New("error during final assembly")
)

// ExtractionError wraps an extractor failure for one file.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrExtractionFailed, e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtractionFailed }

// SpecialistError names every specialist agent that failed in one run.
type SpecialistError struct {
	// Agents is sorted.
	Agents []string
	Errs   map[string]error
}

func newSpecialistError(errs map[string]error) *SpecialistError {
	agents := make([]string, 0, len(errs))
	for name := range errs {
		agents = append(agents, name)
	}
	sort.Strings(agents)
	return &SpecialistError{Agents: agents, Errs: errs}
}

func (e *SpecialistError) Error() string {
	parts := make([]string, 0, len(e.Agents))
	for _, name := range e.Agents {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Errs[name]))
	}
	return fmt.Sprintf("%v (%s)", ErrSpecialistFailed, strings.Join(parts, "; "))
}

func (e *SpecialistError) Is(target error) bool { return target == ErrSpecialistFailed }
