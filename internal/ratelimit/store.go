// Package ratelimit provides fixed-window request limiting for the HTTP API.
package ratelimit

import (
	"context"
	"time"
)

// Store counts hits per key inside fixed windows.
type Store interface {
	// Hit records one request for key and returns the count in the current
	// window together with the time the window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}
