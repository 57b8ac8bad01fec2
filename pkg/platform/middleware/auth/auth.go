package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"privylocker/pkg/domain"
	request "privylocker/pkg/platform/middleware/request"
	"privylocker/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the signer it was issued to.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims are the values the middleware needs from a validated token.
type Claims struct {
	Principal string
	JTI       string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth resolves the bearer token into the request principal. Requests
// without a valid token are rejected with 401.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthenticated access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Invalid or expired token")
				return
			}

			principal, err := domain.ParsePrincipal(claims.Principal)
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated access - invalid principal claim",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
