package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"privylocker/internal/locker/models"
	"privylocker/internal/locker/service"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/platform/httputil"
	"privylocker/pkg/requestcontext"
)

// Service defines the locker operations the handler exposes.
type Service interface {
	InitializeProfile(ctx context.Context, owner domain.Principal) (*models.UserProfile, error)
	GetProfile(ctx context.Context, owner domain.Principal) (*models.UserProfile, error)
	Upload(ctx context.Context, cmd service.UploadCommand) (*service.UploadResult, error)
	GetDocument(ctx context.Context, caller domain.Principal, key domain.DocumentKey) (*models.Document, error)
	ListDocuments(ctx context.Context, owner domain.Principal, offset uint64, limit int) ([]*models.Document, error)
	CreateSession(ctx context.Context, cmd service.CreateSessionCommand) (*service.SessionResult, error)
	RevokeSession(ctx context.Context, caller domain.Principal, key domain.ShareKey) (*service.SessionResult, error)
	GetSession(ctx context.Context, caller domain.Principal, key domain.ShareKey) (*models.ShareSession, error)
	ListSessions(ctx context.Context, caller domain.Principal, doc domain.DocumentKey) ([]*models.ShareSession, error)
	PendingRevocations(ctx context.Context, caller domain.Principal, doc domain.DocumentKey) ([]*models.AccessChange, error)
	ShareStatus(ctx context.Context, key domain.ShareKey) (*service.ShareView, error)
}

// Handler wires the locker endpoints to the locker service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the authenticated endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/profiles", h.HandleInitializeProfile)
	r.Get("/profiles/me", h.HandleGetProfile)

	r.Post("/documents", h.HandleUpload)
	r.Get("/documents", h.HandleListDocuments)
	r.Get("/documents/{documentKey}", h.HandleGetDocument)
	r.Post("/documents/{documentKey}/shares", h.HandleCreateShare)
	r.Get("/documents/{documentKey}/shares", h.HandleListShares)
	r.Get("/documents/{documentKey}/shares/expired", h.HandlePendingRevocations)

	r.Get("/shares/{shareKey}/session", h.HandleGetSession)
	r.Post("/shares/{shareKey}/revoke", h.HandleRevokeShare)
}

// RegisterPublic mounts the endpoints anyone holding a share key may call.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/shares/{shareKey}", h.HandleShareStatus)
}

// HandleInitializeProfile handles POST /profiles.
func (h *Handler) HandleInitializeProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.principal(w, ctx)
	if !ok {
		return
	}

	profile, err := h.service.InitializeProfile(ctx, owner)
	if err != nil {
		h.fail(w, ctx, "failed to initialize profile", err, "owner", owner)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

// HandleGetProfile handles GET /profiles/me.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.principal(w, ctx)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(ctx, owner)
	if err != nil {
		h.fail(w, ctx, "failed to load profile", err, "owner", owner)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

// HandleUpload handles POST /documents.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UploadDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	res, err := h.service.Upload(ctx, service.UploadCommand{
		Owner:       owner,
		Fingerprint: req.Fingerprint,
		BlobURI:     req.BlobURI,
		Ciphertext:  req.DecodedCiphertext(),
	})
	if err != nil {
		h.fail(w, ctx, "failed to upload document", err, "owner", owner)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, UploadResponse{
		Document:       toDocumentResponse(res.Document),
		RequiredAccess: toAccessChangeResponse(res.Access),
	})
}

// HandleListDocuments handles GET /documents?offset=&limit=.
func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.principal(w, ctx)
	if !ok {
		return
	}

	var (
		offset uint64
		limit  int
		err    error
	)
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.ParseUint(v, 10, 64); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer"))
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
	}

	docs, err := h.service.ListDocuments(ctx, owner, offset, limit)
	if err != nil {
		h.fail(w, ctx, "failed to list documents", err, "owner", owner)
		return
	}
	resp := DocumentListResponse{Documents: make([]*DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetDocument handles GET /documents/{documentKey}.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	key, ok := documentKeyParam(w, r)
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(ctx, caller, key)
	if err != nil {
		h.fail(w, ctx, "failed to load document", err, "document_key", key)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// HandleCreateShare handles POST /documents/{documentKey}/shares.
func (h *Handler) HandleCreateShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	key, ok := documentKeyParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateShareRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	res, err := h.service.CreateSession(ctx, service.CreateSessionCommand{
		Owner:      owner,
		Document:   key,
		Verifier:   req.ParsedVerifier(),
		TTLSeconds: req.TTLSeconds,
	})
	if err != nil {
		h.fail(w, ctx, "failed to create share session", err, "document_key", key)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSessionResultResponse(res, requestcontext.Now(ctx)))
}

// HandleListShares handles GET /documents/{documentKey}/shares.
func (h *Handler) HandleListShares(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	key, ok := documentKeyParam(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.ListSessions(ctx, caller, key)
	if err != nil {
		h.fail(w, ctx, "failed to list share sessions", err, "document_key", key)
		return
	}
	now := requestcontext.Now(ctx)
	resp := SessionListResponse{Sessions: make([]*SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s, now))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandlePendingRevocations handles GET /documents/{documentKey}/shares/expired.
func (h *Handler) HandlePendingRevocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	key, ok := documentKeyParam(w, r)
	if !ok {
		return
	}

	changes, err := h.service.PendingRevocations(ctx, caller, key)
	if err != nil {
		h.fail(w, ctx, "failed to list pending revocations", err, "document_key", key)
		return
	}
	resp := PendingRevocationsResponse{Revocations: make([]*AccessChangeResponse, 0, len(changes))}
	for _, c := range changes {
		resp.Revocations = append(resp.Revocations, toAccessChangeResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetSession handles GET /shares/{shareKey}/session.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	key, ok := shareKeyParam(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(ctx, caller, key)
	if err != nil {
		h.fail(w, ctx, "failed to load share session", err, "share_key", key)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResponse(session, requestcontext.Now(ctx)))
}

// HandleRevokeShare handles POST /shares/{shareKey}/revoke.
func (h *Handler) HandleRevokeShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	key, ok := shareKeyParam(w, r)
	if !ok {
		return
	}

	res, err := h.service.RevokeSession(ctx, caller, key)
	if err != nil {
		h.fail(w, ctx, "failed to revoke share session", err, "share_key", key)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSessionResultResponse(res, requestcontext.Now(ctx)))
}

// HandleShareStatus handles GET /shares/{shareKey}.
func (h *Handler) HandleShareStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := shareKeyParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.ShareStatus(ctx, key)
	if err != nil {
		h.fail(w, ctx, "failed to load share status", err, "share_key", key)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toShareStatusResponse(view))
}

// principal returns the authenticated caller. RequireAuth guarantees one on
// every route mounted by Register.
func (h *Handler) principal(w http.ResponseWriter, ctx context.Context) (domain.Principal, bool) {
	p := requestcontext.Principal(ctx)
	if p.IsNil() {
		h.logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return "", false
	}
	return p, true
}

// fail logs server-side failures at error level and client errors at warn,
// then writes the error envelope.
func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusForCode(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

func documentKeyParam(w http.ResponseWriter, r *http.Request) (domain.DocumentKey, bool) {
	key, err := domain.ParseDocumentKey(chi.URLParam(r, "documentKey"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return key, true
}

func shareKeyParam(w http.ResponseWriter, r *http.Request) (domain.ShareKey, bool) {
	key, err := domain.ParseShareKey(chi.URLParam(r, "shareKey"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return key, true
}
