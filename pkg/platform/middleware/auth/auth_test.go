package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"privylocker/pkg/domain"
	"privylocker/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*Claims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got domain.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token sets principal", func(t *testing.T) {
		h := RequireAuth(stubValidator{claims: &Claims{Principal: "owner-1"}}, logger)(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, domain.Principal("owner-1"), got)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		h := RequireAuth(stubValidator{}, logger)(next)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthenticated")
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: errors.New("bad signature")}, logger)(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed principal claim is 401", func(t *testing.T) {
		h := RequireAuth(stubValidator{claims: &Claims{Principal: "has space"}}, logger)(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
