// Package services wraps every outbound call with classification, rate
// limiting and retry so call sites stay small.
package services

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"top10-pipeline/logging"
	"top10-pipeline/ratelimit"
)

const (
	// DefaultMaxRetries bounds additional attempts after the first call.
	DefaultMaxRetries = 2
	// backoffCap bounds the local exponential delay between attempts.
	backoffCap = 30 * time.Second
)

// Adapter runs outbound calls through the shared rate limiter.
type Adapter struct {
	Limiter *ratelimit.Limiter

	// Sleep is swapped in tests so retries do not burn wall clock.
	Sleep func(context.Context, time.Duration) error
}

// NewAdapter wires an adapter to the process-wide limiter.
func NewAdapter(limiter *ratelimit.Limiter) *Adapter {
	return &Adapter{Limiter: limiter, Sleep: sleepCtx}
}

// Call invokes fn for service with throttling and up to maxRetries extra
// attempts. HTTP 400 propagates immediately since the input itself is bad.
// HTTP 429 defers to the provider's Retry-After through the limiter.
func Call[T any](ctx context.Context, a *Adapter, service string, maxRetries int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	log := logging.For("services")

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		// Wait out the gate before calling. Only fn invocations spend the
		// retry budget; waiting here does not.
		for {
			throttled, wait := a.Limiter.ShouldThrottle(service)
			if !throttled {
				break
			}
			if wait <= 0 {
				wait = time.Millisecond
			}
			log.Debug().Str("service", service).Dur("wait", wait).Msg("throttled before call")
			if err := a.sleepFn()(ctx, wait); err != nil {
				return zero, err
			}
			if err := ctx.Err(); err != nil {
				return zero, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		attempts++
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			switch httpErr.StatusCode {
			case http.StatusBadRequest:
				// Malformed input never heals on retry.
				return zero, &ServiceError{Service: service, Kind: KindAPI, Attempts: attempts, Err: err}
			case http.StatusTooManyRequests:
				if _, slErr := a.Limiter.RecordHit(ctx, service, httpErr.RetryAfter); slErr != nil {
					return zero, slErr
				}
				continue
			}
		}

		if attempt == maxRetries {
			break
		}
		delay := backoff(attempt)
		log.Warn().Str("service", service).Int("attempt", attempts).Err(err).Dur("retry_in", delay).Msg("call failed, retrying")
		if slErr := a.sleepFn()(ctx, delay); slErr != nil {
			return zero, slErr
		}
	}

	return zero, &ServiceError{Service: service, Kind: Classify(lastErr), Attempts: attempts, Err: lastErr}
}

// backoff returns min(2^attempt, cap) seconds.
func backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt))
	d := time.Duration(secs * float64(time.Second))
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

func (a *Adapter) sleepFn() func(context.Context, time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep
	}
	return sleepCtx
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
