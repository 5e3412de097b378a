package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned when ingestion fails and no prior snapshot exists to
// fall back to. It is the only hard failure surfaced to snapshot readers.
var ErrNoData = errors.New("no snapshot data available")

// UpstreamError reports a page fetch that failed after exhausting retries.
// It is fatal to the stream it belongs to.
type UpstreamError struct {
	Stream   string
	Page     int
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("stream %s: page %d failed after %d attempts: %v", e.Stream, e.Page, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StreamFailure records how one event stream fared during a refresh.
type StreamFailure struct {
	Stream    string
	Recovered int
	Err       error
}

// IngestionError reports a refresh in which one or more streams failed with
// nothing recovered. It carries per-stream recovered counts so callers can
// see how much data survived.
type IngestionError struct {
	Failures []StreamFailure
}

func (e *IngestionError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (recovered %d): %v", f.Stream, f.Recovered, f.Err))
	}
	return "ingestion failed: " + strings.Join(parts, "; ")
}
