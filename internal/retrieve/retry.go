package retrieve

import (
	"context"
	"fmt"
	"time"

	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
)

// DefaultMaxAttempts bounds the attempts of one transfer.
const DefaultMaxAttempts = 5

// MaxAttemptsExceededError is returned when every attempt of a transfer
// failed transiently.
type MaxAttemptsExceededError struct {
	Attempts int
	Last     error
}

func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("retrieve: giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *MaxAttemptsExceededError) Unwrap() error {
	return e.Last
}

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of attempts. Default: 5
	MaxAttempts int

	// Backoff is the pause between attempts. Zero retries immediately.
	Backoff time.Duration

	// OnRetry is called before every attempt after the first.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, returns an error that is not a transient
// transfer fault, or has been attempted MaxAttempts times.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}

	var last error
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, last)
			}
			if p.Backoff > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.Backoff):
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !cdshttp.IsTransient(err) {
			return err
		}
		last = err
	}
	return &MaxAttemptsExceededError{Attempts: limit, Last: last}
}
