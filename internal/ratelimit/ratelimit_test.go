package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privylocker/pkg/requestcontext"
	"privylocker/pkg/testutil"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(perSecond float64, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewLimiter(perSecond, burst, WithClock(clock.now), WithIdleTTL(time.Minute)), clock
}

func TestLimiterAllow(t *testing.T) {
	l, clock := newTestLimiter(1, 2)

	first := l.Allow("a")
	assert.True(t, first.Allowed)
	assert.Equal(t, 2, first.Limit)
	assert.Equal(t, 1, first.Remaining)

	assert.True(t, l.Allow("a").Allowed)

	denied := l.Allow("a")
	assert.False(t, denied.Allowed)
	assert.Equal(t, time.Second, denied.RetryAfter)

	assert.True(t, l.Allow("b").Allowed, "keys have independent buckets")

	clock.t = clock.t.Add(time.Second)
	assert.True(t, l.Allow("a").Allowed, "token refills after one second")
}

func TestLimiterDeniedDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	require.True(t, l.Allow("a").Allowed)
	for range 5 {
		assert.False(t, l.Allow("a").Allowed)
	}
	clock.t = clock.t.Add(time.Second)
	assert.True(t, l.Allow("a").Allowed)
}

func TestLimiterSweep(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	l.Allow("old")
	clock.t = clock.t.Add(45 * time.Second)
	l.Allow("fresh")
	clock.t = clock.t.Add(30 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(requestcontext.WithClientIP(req.Context(), "10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", ByClientIP(req))
	assert.Equal(t, "ip:10.0.0.1", ByPrincipal(req))

	req = testutil.WithPrincipal(req, "alice")
	assert.Equal(t, "principal:alice", ByPrincipal(req))
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	fixedKey := func(*http.Request) string { return "k" }

	t.Run("rejects over budget", func(t *testing.T) {
		l, _ := newTestLimiter(1, 1)
		h := NewMiddleware(l, logger).Limit(fixedKey)(ok)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		testutil.AssertStatusAndError(t, rec, http.StatusTooManyRequests, "rate_limit_exceeded")
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("empty key skips limiting", func(t *testing.T) {
		l, _ := newTestLimiter(1, 1)
		h := NewMiddleware(l, logger).Limit(func(*http.Request) string { return "" })(ok)
		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
		assert.Zero(t, l.Len())
	})

	t.Run("disabled passes everything", func(t *testing.T) {
		l, _ := newTestLimiter(1, 1)
		h := NewMiddleware(l, logger, WithDisabled(true)).Limit(fixedKey)(ok)
		for range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
	})
}
