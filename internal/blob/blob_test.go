package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/requestcontext"
	"privylocker/pkg/testutil"
)

type fakePresigner struct {
	err  error
	puts []string
	gets []string
}

func (f *fakePresigner) PresignPut(_ context.Context, bucket, key string, expires time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.puts = append(f.puts, key)
	return "https://s3.example.com/" + bucket + "/" + key + "?X-Amz-Expires=" + expires.String(), nil
}

func (f *fakePresigner) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.gets = append(f.gets, key)
	return "https://s3.example.com/" + bucket + "/" + key, nil
}

var (
	owner = domain.Principal("alice")
	now   = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
)

func ctxFor(p domain.Principal) context.Context {
	return requestcontext.WithPrincipal(requestcontext.WithTime(context.Background(), now), p)
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, "bucket", 0)
	require.Error(t, err)
	_, err = NewService(&fakePresigner{}, "", 0)
	require.Error(t, err)

	svc, err := NewService(&fakePresigner{}, "bucket", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultExpires, svc.expires)
}

func TestServiceUploadAndDownload(t *testing.T) {
	presigner := &fakePresigner{}
	svc, err := NewService(presigner, "locker", time.Minute)
	require.NoError(t, err)

	up, err := svc.NewUpload(ctxFor(owner), owner)
	require.NoError(t, err)
	prefix := "documents/" + domain.DeriveProfileKey(owner).String()[:16] + "/"
	assert.True(t, strings.HasPrefix(up.Key, prefix), up.Key)
	assert.Equal(t, "s3://locker/"+up.Key, up.BlobURI)
	assert.LessOrEqual(t, len(up.BlobURI), 200)
	assert.Equal(t, now.Add(time.Minute), up.ExpiresAt)

	other, err := svc.NewUpload(ctxFor(owner), owner)
	require.NoError(t, err)
	assert.NotEqual(t, up.Key, other.Key)

	down, err := svc.NewDownload(ctxFor(owner), owner, up.Key)
	require.NoError(t, err)
	assert.Equal(t, up.Key, down.Key)
	assert.Equal(t, []string{up.Key}, presigner.gets)

	_, err = svc.NewDownload(ctxFor("bob"), "bob", up.Key)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))

	for _, bad := range []string{"", "other/key", prefix + "../x"} {
		_, err = svc.NewDownload(ctxFor(owner), owner, bad)
		assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err), bad)
	}
}

func TestServicePresignFailure(t *testing.T) {
	svc, err := NewService(&fakePresigner{err: errors.New("no credentials")}, "locker", time.Minute)
	require.NoError(t, err)

	_, err = svc.NewUpload(ctxFor(owner), owner)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}

func newBlobRouter(t *testing.T, p Presigner) http.Handler {
	t.Helper()
	svc, err := NewService(p, "locker", time.Minute)
	require.NoError(t, err)
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestHandler(t *testing.T) {
	router := newBlobRouter(t, &fakePresigner{})

	t.Run("requires a principal", func(t *testing.T) {
		rec := testutil.DoRequest(router, httptest.NewRequest(http.MethodPost, "/blobs", nil))
		testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthenticated")
	})

	t.Run("upload then download", func(t *testing.T) {
		req := testutil.WithPrincipal(httptest.NewRequest(http.MethodPost, "/blobs", nil), "alice")
		rec := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		up := testutil.UnmarshalResponse[uploadResponse](t, rec)
		assert.NotEmpty(t, up.UploadURL)
		assert.True(t, strings.HasPrefix(up.BlobURI, "s3://locker/documents/"))

		req = testutil.WithPrincipal(httptest.NewRequest(http.MethodGet, "/blobs/"+up.Key, nil), "alice")
		rec = testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rec.Code)
		down := testutil.UnmarshalResponse[downloadResponse](t, rec)
		assert.Equal(t, up.Key, down.Key)

		req = testutil.WithPrincipal(httptest.NewRequest(http.MethodGet, "/blobs/"+up.Key, nil), "bob")
		rec = testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rec, http.StatusForbidden, "unauthorized")
	})

	t.Run("presign failure is internal", func(t *testing.T) {
		failing := newBlobRouter(t, &fakePresigner{err: errors.New("no credentials")})
		req := testutil.WithPrincipal(httptest.NewRequest(http.MethodPost, "/blobs", nil), "alice")
		rec := testutil.DoRequest(failing, req)
		testutil.AssertStatusAndError(t, rec, http.StatusInternalServerError, "internal_error")
	})
}
