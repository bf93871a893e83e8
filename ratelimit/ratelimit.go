// Package ratelimit tracks per-service backoff state so that every
// outbound caller shares one view of how hard a provider is pushing back.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"top10-pipeline/logging"
)

const (
	// DefaultInitialBackoff seeds the doubling sequence on the first hit.
	DefaultInitialBackoff = 500 * time.Millisecond
	// DefaultMaxBackoff caps the backoff for services without an override.
	DefaultMaxBackoff = 30 * time.Second

	burstWindow  = time.Second
	burstLimit   = 10
	idleReset    = 5 * time.Second
)

type serviceState struct {
	mu           sync.Mutex
	lastRequest  time.Time
	backoff      time.Duration
	limited      bool
	limitedUntil time.Time
	requests     int
	windowStart  time.Time
}

// Limiter holds rate-limit state for any number of named services.
// One Limiter is constructed at process start and shared by reference.
type Limiter struct {
	mu         sync.Mutex
	services   map[string]*serviceState
	maxBackoff map[string]time.Duration

	// Now and Sleep are swapped in tests to keep the clock virtual.
	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
	rand  *rand.Rand
}

// New returns a Limiter with default backoff bounds for every service.
func New() *Limiter {
	return &Limiter{
		services:   make(map[string]*serviceState),
		maxBackoff: make(map[string]time.Duration),
		Now:        time.Now,
		Sleep:      sleepCtx,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetMaxBackoff overrides the backoff ceiling for one service.
func (l *Limiter) SetMaxBackoff(service string, max time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxBackoff[service] = max
}

func (l *Limiter) state(service string) *serviceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.services[service]
	if !ok {
		s = &serviceState{}
		l.services[service] = s
	}
	return s
}

func (l *Limiter) ceiling(service string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if max, ok := l.maxBackoff[service]; ok {
		return max
	}
	return DefaultMaxBackoff
}

// ShouldThrottle reports whether a call to service must wait, and for how
// long. When it returns false the caller is cleared to proceed and the
// rolling request counter is advanced.
func (l *Limiter) ShouldThrottle(service string) (bool, time.Duration) {
	s := l.state(service)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.Now()

	if s.limited && now.Before(s.limitedUntil) {
		return true, s.limitedUntil.Sub(now)
	}
	s.limited = false

	// The burst counter only survives while requests keep arriving.
	if now.Sub(s.lastRequest) > idleReset {
		s.requests = 0
		s.windowStart = now
	}
	if now.Sub(s.windowStart) > burstWindow {
		s.requests = 0
		s.windowStart = now
	}
	if s.requests >= burstLimit {
		wait := burstWindow - now.Sub(s.windowStart)
		if wait < 0 {
			wait = 0
		}
		return true, wait
	}

	s.requests++
	s.lastRequest = now
	return false, 0
}

// RecordHit registers a provider rate-limit signal for service and sleeps
// the caller for the computed cooldown. When the provider supplied an
// explicit retry-after it wins over the local doubling sequence. The
// returned duration includes jitter so concurrent callers fan out.
func (l *Limiter) RecordHit(ctx context.Context, service string, retryAfter time.Duration) (time.Duration, error) {
	wait := l.nextBackoff(service, retryAfter)

	log := logging.For("ratelimit")
	log.Warn().Str("service", service).Dur("wait", wait).Msg("rate limit hit, backing off")

	if err := l.Sleep(ctx, wait); err != nil {
		return wait, err
	}
	return wait, nil
}

func (l *Limiter) nextBackoff(service string, retryAfter time.Duration) time.Duration {
	max := l.ceiling(service)
	s := l.state(service)
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Duration
	switch {
	case retryAfter > 0:
		next = retryAfter
	case s.backoff == 0:
		next = DefaultInitialBackoff
	default:
		next = s.backoff * 2
	}
	if next > max {
		next = max
	}
	s.backoff = next
	s.limited = true

	wait := l.jitter(next)
	s.limitedUntil = l.Now().Add(wait)
	return wait
}

// jitter scales d by a uniform factor in [0.9, 1.1].
func (l *Limiter) jitter(d time.Duration) time.Duration {
	l.mu.Lock()
	f := 0.9 + l.rand.Float64()*0.2
	l.mu.Unlock()
	return time.Duration(float64(d) * f)
}

// Reset clears all state for a service, or for every service when the
// name is empty. Intended for tests and between pipeline runs.
func (l *Limiter) Reset(service string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if service == "" {
		l.services = make(map[string]*serviceState)
		return
	}
	delete(l.services, service)
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
