// Package retry repeats operations against remote services with
// exponential backoff.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" toml:"initial_delay"`
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay" toml:"max_delay"`
	// Factor is the multiplier for exponential backoff.
	Factor float64 `yaml:"factor" json:"factor" toml:"factor"`
	// Jitter randomizes each delay to delay * [0.5, 1.5).
	Jitter bool `yaml:"jitter" json:"jitter" toml:"jitter"`
}

// DefaultPolicy returns the policy used for ledger requests.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Factor <= 0 {
		p.Factor = 2.0
	}
	return p
}

// Backoff returns the delay after the given failed attempt, without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 0 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Result contains the outcome of a retried operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent, including waits.
	Duration time.Duration
}

// Do runs op until it succeeds, returns an error retryable rejects, the
// attempts are used up or ctx is done. A nil retryable retries every error.
func Do(ctx context.Context, p Policy, retryable Classifier, op func(attempt int) error) Result {
	p = p.normalized()
	start := time.Now()
	result := Result{}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result.Attempts = attempt
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}

		err := op(attempt)
		result.Err = err
		if err == nil {
			break
		}
		if retryable != nil && !retryable(err) {
			break
		}
		if attempt == p.MaxAttempts {
			break
		}

		sleep := p.Backoff(attempt)
		if p.Jitter {
			sleep = time.Duration(float64(sleep) * (0.5 + rand.Float64())) // #nosec G404 -- jitter does not require cryptographic randomness
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-timer.C:
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, retryable Classifier, op func(attempt int) (T, error)) (T, Result) {
	var value T
	result := Do(ctx, p, retryable, func(attempt int) error {
		var err error
		value, err = op(attempt)
		return err
	})
	return value, result
}
