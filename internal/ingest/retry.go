package ingest

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

// Backoff constants
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffFactor     = 2.0
	JitterPercent     = 0.2
	DefaultMaxRetries = 3
)

// Backoff describes a bounded exponential retry schedule with jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Factor     float64
	Jitter     float64
	MaxRetries int
}

// DefaultBackoff returns the schedule used against the upstream API.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Factor:     BackoffFactor,
		Jitter:     JitterPercent,
		MaxRetries: DefaultMaxRetries,
	}
}

// Delay returns the wait before retry number attempt (0-based), jitter included.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if b.Max > 0 && d > float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}

	jitter := d * b.Jitter * (rand.Float64()*2 - 1)
	return time.Duration(d + jitter)
}

// wait blocks for the delay of attempt or until ctx is done.
func (b Backoff) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryableStatus reports whether an HTTP status is worth retrying.
// The upstream answers rate limiting with either 429 or 403.
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusForbidden:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
