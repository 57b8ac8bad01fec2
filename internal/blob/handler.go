package blob

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/platform/httputil"
	"privylocker/pkg/requestcontext"
)

// URLService is the presigning surface the handler needs.
type URLService interface {
	NewUpload(ctx context.Context, owner domain.Principal) (*Upload, error)
	NewDownload(ctx context.Context, owner domain.Principal, key string) (*Download, error)
}

type Handler struct {
	service URLService
	logger  *slog.Logger
}

func NewHandler(service URLService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the blob endpoints. Callers must be authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Post("/blobs", h.HandleCreateUpload)
	r.Get("/blobs/*", h.HandleDownload)
}

type uploadResponse struct {
	Key       string    `json:"key"`
	BlobURI   string    `json:"blob_uri"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type downloadResponse struct {
	Key         string    `json:"key"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HandleCreateUpload handles POST /blobs.
func (h *Handler) HandleCreateUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := requestcontext.Principal(ctx)
	if owner.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	up, err := h.service.NewUpload(ctx, owner)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to presign blob upload",
			"request_id", requestcontext.RequestID(ctx),
			"owner", owner,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{
		Key:       up.Key,
		BlobURI:   up.BlobURI,
		UploadURL: up.URL,
		ExpiresAt: up.ExpiresAt,
	})
}

// HandleDownload handles GET /blobs/{key}. Keys contain slashes.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := requestcontext.Principal(ctx)
	if owner.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	down, err := h.service.NewDownload(ctx, owner, chi.URLParam(r, "*"))
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to presign blob download",
				"request_id", requestcontext.RequestID(ctx),
				"owner", owner,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, downloadResponse{
		Key:         down.Key,
		DownloadURL: down.URL,
		ExpiresAt:   down.ExpiresAt,
	})
}
