// Package httputil holds the JSON response and request helpers shared by handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "privylocker/pkg/domain-errors"
)

// maxBodyBytes caps request bodies. Locker payloads are small JSON objects.
const maxBodyBytes = 64 << 10

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Validatable is implemented by request structs decoded with DecodeAndPrepare.
type Validatable interface {
	Validate() error
}

// Normalizable is optionally implemented by request structs to trim and
// canonicalize input before validation.
type Normalizable interface {
	Normalize()
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to an HTTP status and writes the error envelope.
// Internal errors never leak their message to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusForCode(code)

	resp := ErrorResponse{Error: string(code)}
	if status < http.StatusInternalServerError || code == dErrors.CodeConfidentialService {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}

// StatusForCode maps a domain error code to an HTTP status.
func StatusForCode(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeInvalidExpiry, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeUnauthorized:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyInitialized, dErrors.CodeSessionAlreadyExists,
		dErrors.CodeCounterOverflow, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeConfidentialService:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T, normalizes it when supported and
// validates it. On failure it writes the error response and returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON in request body"))
		return nil, false
	}

	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request",
				"error", err,
				"request_id", requestID,
			)
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
