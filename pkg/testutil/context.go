package testutil

import (
	"net/http"
	"time"

	"privylocker/pkg/domain"
	"privylocker/pkg/requestcontext"
)

// WithPrincipal marks the request as authenticated by principal, as
// RequireAuth would. Invalid principals leave the request anonymous.
func WithPrincipal(req *http.Request, principal string) *http.Request {
	p, err := domain.ParsePrincipal(principal)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
