package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
)

func newSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":    "<html><body><div id=\"app-wasm-loader\"></div></body></html>",
		"app-worker.js": "self.addEventListener('install', () => {});",
		"web/app.wasm":  "\x00asm\x01\x00\x00\x00",
	}
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Root == "" {
		opts.Root = newSite(t)
	}
	opts.Development = true
	srv, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServesBootHeaders(t *testing.T) {
	srv := newTestServer(t, Options{})
	h := srv.Handler()

	tests := []struct {
		name        string
		path        string
		contentType string
		swAllowed   string
	}{
		{"module", "/web/app.wasm", "application/wasm", ""},
		{"worker", "/app-worker.js", "javascript", "/"},
		{"page", "/", "text/html", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, http.MethodGet, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			assert.Equal(t, tt.swAllowed, rec.Header().Get("Service-Worker-Allowed"))
			assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		})
	}
}

func TestWorkerScopeOverride(t *testing.T) {
	srv := newTestServer(t, Options{WorkerScope: "/app/"})
	rec := get(t, srv.Handler(), http.MethodGet, "/app-worker.js")
	assert.Equal(t, "/app/", rec.Header().Get("Service-Worker-Allowed"))
}

func TestMissingFileAndMethods(t *testing.T) {
	srv := newTestServer(t, Options{})
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, http.MethodGet, "/missing.wasm").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, http.MethodPost, "/app-worker.js").Code)
	assert.Equal(t, http.StatusOK, get(t, h, http.MethodHead, "/app-worker.js").Code)
}

func TestNoDirectoryListing(t *testing.T) {
	srv := newTestServer(t, Options{})
	rec := get(t, srv.Handler(), http.MethodGet, "/web/")
	assert.NotContains(t, rec.Body.String(), "app.wasm")
}

func TestHealthAndMetrics(t *testing.T) {
	m := monitoring.NewMetrics()
	srv := newTestServer(t, Options{Metrics: m})
	h := srv.Handler()

	rec := get(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	get(t, h, http.MethodGet, "/web/app.wasm")

	rec = get(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `webboot_http_requests_total{method="GET",path="static",status="200"} 1`), body)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 2}})
	h := srv.Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, get(t, h, http.MethodGet, "/app-worker.js").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/web/app.wasm", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(Options{Root: file})
	assert.ErrorContains(t, err, "not a directory")
}
