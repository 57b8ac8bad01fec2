// Package circuit provides a consecutive-failure circuit breaker for calls to
// unhealthy dependencies.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the circuit is open.
var ErrOpen = errors.New("circuit open")

// Breaker opens after threshold consecutive failures and stays open for
// cooldown, then lets calls through again. One success closes it.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	openUntil time.Time
	open      bool
}

type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failures needed to open.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{name: name, threshold: 5, cooldown: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. An open circuit whose cooldown has
// elapsed moves to half-open and allows calls until the next outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().After(b.openUntil) {
		b.open = false
		b.failures = b.threshold - 1
		return true
	}
	return false
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// RecordFailure counts a failure and reports whether this call opened the circuit.
func (b *Breaker) RecordFailure() (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openUntil = b.now().Add(b.cooldown)
		return true
	}
	return false
}

// IsOpen returns true if the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Do runs fn unless the circuit is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
