// Package ratelimit throttles HTTP requests with per-key token buckets. Public
// routes are keyed by client IP, authenticated routes by signer.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"privylocker/pkg/platform/httputil"
	"privylocker/pkg/requestcontext"
)

const (
	defaultIdleTTL       = 5 * time.Minute
	defaultSweepInterval = time.Minute
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per key and forgets keys idle for longer
// than the configured TTL.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type Option func(*Limiter)

// WithIdleTTL sets how long an unused bucket is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter allows perSecond sustained requests per key with the given burst.
func NewLimiter(perSecond float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := Result{Limit: l.burst}
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return res
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		return res
	}
	res.Allowed = true
	res.Remaining = int(math.Max(0, math.Floor(b.lim.TokensAt(now))))
	return res
}

// Sweep drops buckets idle for longer than the TTL and reports how many went.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RunSweeper sweeps idle buckets until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// KeyFunc derives the bucket key for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByClientIP keys on the address resolved by the client metadata middleware.
func ByClientIP(r *http.Request) string {
	return "ip:" + requestcontext.ClientIP(r.Context())
}

// ByPrincipal keys on the authenticated signer and falls back to the client IP.
func ByPrincipal(r *http.Request) string {
	if p := requestcontext.Principal(r.Context()); !p.IsNil() {
		return "principal:" + p.String()
	}
	return ByClientIP(r)
}

// Middleware applies a Limiter to HTTP handlers.
type Middleware struct {
	limiter  *Limiter
	logger   *slog.Logger
	disabled bool
}

type MiddlewareOption func(*Middleware)

// WithDisabled turns limiting off entirely (local demo mode).
func WithDisabled(disabled bool) MiddlewareOption {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func NewMiddleware(limiter *Limiter, logger *slog.Logger, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit rejects requests over budget with 429 and a Retry-After header.
func (m *Middleware) Limit(keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := m.limiter.Allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				retry := int(math.Ceil(res.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				m.logger.WarnContext(r.Context(), "rate limit exceeded",
					"key", key,
					"retry_after_seconds", retry,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
					Error:            "rate_limit_exceeded",
					ErrorDescription: "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
