package handler_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"privylocker/internal/confidential/devengine"
	jwttoken "privylocker/internal/jwt_token"
	"privylocker/internal/locker/handler"
	"privylocker/internal/locker/service"
	"privylocker/internal/locker/store"
	"privylocker/pkg/platform/httputil"
	"privylocker/pkg/platform/middleware/auth"
	"privylocker/pkg/platform/middleware/request"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	jwt    *jwttoken.JWTService
	engine *devengine.Engine
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	var err error
	s.engine, err = devengine.NewRandom()
	s.Require().NoError(err)

	mem := store.NewInMemory()
	svc, err := service.New(store.NewShardedTx(mem), mem, s.engine)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.jwt = jwttoken.NewJWTService("test-key", "privylocker", "privylocker-api")
	h := handler.New(svc, logger)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Group(h.RegisterPublic)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(s.jwt), logger))
		h.Register(r)
	})
	s.router = r
}

func (s *HandlerSuite) token(principal string) string {
	tok, err := s.jwt.GenerateToken(principal, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(method, path, principal string, body any) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(principal))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (s *HandlerSuite) ciphertext(v uint64) string {
	ct, err := s.engine.Encrypt(devengine.ValueOf(v))
	s.Require().NoError(err)
	return base64.StdEncoding.EncodeToString(ct)
}

func (s *HandlerSuite) uploadDocument(owner string) handler.UploadResponse {
	rec := s.do(http.MethodPost, "/documents", owner, map[string]string{
		"fingerprint": "abc123",
		"blob_uri":    "s3://bucket/documents/x",
		"ciphertext":  s.ciphertext(1),
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return decode[handler.UploadResponse](s, rec)
}

func (s *HandlerSuite) TestAuthenticationRequired() {
	rec := s.do(http.MethodPost, "/profiles", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/profiles/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestProfiles() {
	rec := s.do(http.MethodPost, "/profiles", "alice", nil)
	s.Require().Equal(http.StatusCreated, rec.Code)
	p := decode[handler.ProfileResponse](s, rec)
	s.Equal("alice", p.Owner)
	s.Zero(p.DocumentCount)

	rec = s.do(http.MethodPost, "/profiles", "alice", nil)
	s.Equal(http.StatusConflict, rec.Code)
	errResp := decode[httputil.ErrorResponse](s, rec)
	s.Equal("already_initialized", errResp.Error)

	rec = s.do(http.MethodGet, "/profiles/me", "alice", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(p.Key, decode[handler.ProfileResponse](s, rec).Key)

	rec = s.do(http.MethodGet, "/profiles/me", "bob", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestDocuments() {
	s.do(http.MethodPost, "/profiles", "alice", nil)

	s.Run("upload returns the document and the owner grant", func() {
		up := s.uploadDocument("alice")
		s.Equal(uint64(0), up.Document.Index)
		s.Equal("abc123", up.Document.Fingerprint)
		s.Require().NotNil(up.RequiredAccess)
		s.Equal("grant", up.RequiredAccess.Action)
		s.Equal("alice", up.RequiredAccess.Principal)
		s.Equal(up.Document.SensitiveHandle, up.RequiredAccess.Handle)
	})

	s.Run("invalid bodies are rejected", func() {
		rec := s.do(http.MethodPost, "/documents", "alice", map[string]string{"ciphertext": "%%%"})
		s.Equal(http.StatusBadRequest, rec.Code)

		rec = s.do(http.MethodPost, "/documents", "alice", map[string]string{"ciphertext": s.ciphertext(1), "extra": "x"})
		s.Equal(http.StatusBadRequest, rec.Code)

		rec = s.do(http.MethodPost, "/documents", "alice", map[string]string{
			"fingerprint": strings.Repeat("f", 65),
			"ciphertext":  s.ciphertext(1),
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("upload without profile is not found", func() {
		rec := s.do(http.MethodPost, "/documents", "carol", map[string]string{"ciphertext": s.ciphertext(1)})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("list and get", func() {
		second := s.uploadDocument("alice")
		rec := s.do(http.MethodGet, "/documents?offset=1&limit=5", "alice", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		list := decode[handler.DocumentListResponse](s, rec)
		s.Require().Len(list.Documents, 1)
		s.Equal(second.Document.Key, list.Documents[0].Key)

		rec = s.do(http.MethodGet, "/documents/"+second.Document.Key, "alice", nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.do(http.MethodGet, "/documents/"+second.Document.Key, "bob", nil)
		s.Equal(http.StatusForbidden, rec.Code)

		rec = s.do(http.MethodGet, "/documents/not-hex", "alice", nil)
		s.Equal(http.StatusBadRequest, rec.Code)

		rec = s.do(http.MethodGet, "/documents?offset=-1", "alice", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestShareLifecycle() {
	s.do(http.MethodPost, "/profiles", "alice", nil)
	doc := s.uploadDocument("alice").Document
	sharesPath := "/documents/" + doc.Key + "/shares"

	rec := s.do(http.MethodPost, sharesPath, "alice", map[string]any{"verifier": "bob", "ttl_seconds": 0})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("invalid_expiry", decode[httputil.ErrorResponse](s, rec).Error)

	rec = s.do(http.MethodPost, sharesPath, "bob", map[string]any{"verifier": "carol", "ttl_seconds": 60})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, sharesPath, "alice", map[string]any{"verifier": "bob", "ttl_seconds": 3600})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[handler.SessionResultResponse](s, rec)
	s.Equal("active", created.Session.Status)
	s.Require().NotNil(created.RequiredAccess)
	s.Equal("grant", created.RequiredAccess.Action)
	s.Equal("bob", created.RequiredAccess.Principal)
	s.Equal(created.Session.DerivedHandle, created.RequiredAccess.Handle)

	rec = s.do(http.MethodPost, sharesPath, "alice", map[string]any{"verifier": "bob", "ttl_seconds": 60})
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("session_already_exists", decode[httputil.ErrorResponse](s, rec).Error)

	shareKey := created.Session.Key

	rec = s.do(http.MethodGet, "/shares/"+shareKey, "", nil)
	s.Require().Equal(http.StatusOK, rec.Code, "verify view is public")
	status := decode[handler.ShareStatusResponse](s, rec)
	s.Equal("active", status.Status)
	s.True(status.Accessible)
	s.Equal("bob", status.Verifier)

	rec = s.do(http.MethodGet, "/shares/"+shareKey+"/session", "bob", nil)
	s.Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/shares/"+shareKey+"/session", "carol", nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, sharesPath, "alice", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(decode[handler.SessionListResponse](s, rec).Sessions, 1)

	rec = s.do(http.MethodGet, sharesPath+"/expired", "alice", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Empty(decode[handler.PendingRevocationsResponse](s, rec).Revocations)

	rec = s.do(http.MethodPost, "/shares/"+shareKey+"/revoke", "bob", nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/shares/"+shareKey+"/revoke", "alice", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	revoked := decode[handler.SessionResultResponse](s, rec)
	s.True(revoked.Session.Revoked)
	s.Equal("revoked", revoked.Session.Status)
	s.Require().NotNil(revoked.RequiredAccess)
	s.Equal("revoke", revoked.RequiredAccess.Action)

	rec = s.do(http.MethodPost, "/shares/"+shareKey+"/revoke", "alice", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Nil(decode[handler.SessionResultResponse](s, rec).RequiredAccess)

	rec = s.do(http.MethodGet, "/shares/"+shareKey, "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("revoked", decode[handler.ShareStatusResponse](s, rec).Status)

	rec = s.do(http.MethodGet, "/shares/"+strings.Repeat("0", 64), "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}
