package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a run is requested for a project that
// already has a non-terminal run.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// ErrNoSources is returned when a run is requested for a project with no
// ingested sources.
var ErrNoSources = errors.New("pipeline: project has no sources")

// GenerationError wraps a backend failure from the model provider so
// callers can distinguish it from a response that arrived but could not
// be parsed.
type GenerationError struct {
	Provider string
	Stage    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("pipeline: %s generation failed on %s: %v", e.Stage, e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ParseError reports a model response that could not be decoded as the
// structure a stage expects. Snippet carries the head of the raw response
// for diagnosis.
type ParseError struct {
	Stage   string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: %s returned unparseable output: %v (snippet: %q)", e.Stage, e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func snippet(raw string) string {
	const max = 200
	if len(raw) <= max {
		return raw
	}
	return raw[:max]
}
