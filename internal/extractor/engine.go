// Package extractor wraps the external extraction engine: it bounds each
// call in time, retries transient failures and normalizes what the engine
// reports.
package extractor

import (
	"context"
)

// Engine is the black-box extraction backend. Extract returns the engine's
// raw JSON document for url.
type Engine interface {
	Extract(ctx context.Context, url string) ([]byte, error)
}

// EngineError is a failure the engine reported about the video itself, as
// opposed to a failure to run the engine.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return "engine: " + e.Message
}
