// Package ratelimit counts requests per client in fixed windows.
package ratelimit

import (
	"context"
	"time"
)

// Usage is the state of a client's current window after a hit.
type Usage struct {
	Count   int64
	ResetIn time.Duration
}

type Store interface {
	// Hit records one request for key and returns the updated window.
	Hit(ctx context.Context, key string, window time.Duration) (Usage, error)
}
