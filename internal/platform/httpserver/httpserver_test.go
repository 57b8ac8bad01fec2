package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	srv := New(":0", http.NotFoundHandler(), slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, ":0", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	require.NotNil(t, srv.ErrorLog)
	srv.ErrorLog.Print("http: TLS handshake error")
	assert.Contains(t, buf.String(), "TLS handshake error")

	assert.Nil(t, New(":0", http.NotFoundHandler(), nil).ErrorLog)
}
