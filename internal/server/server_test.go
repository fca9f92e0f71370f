package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/score"
	"github.com/ayusman/flowstate/internal/store"
)

// newStoreServer returns a server over a temporary store holding one
// analysis, and the analysis id.
func newStoreServer(t *testing.T, staticDir string) (*Server, string) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	saved, err := s.Analyses().Save("Warmup", "/frames/warmup", &analysis.Result{
		OverallScores: score.Scores{Flow: 55},
		FrameCount:    31,
	})
	require.NoError(t, err)

	return New(Config{StaticDir: staticDir, Store: s}), saved.ID
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	rec := serve(New(Config{}), http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "uptime")
}

func TestServer_CORS(t *testing.T) {
	srv, id := newStoreServer(t, t.TempDir())

	t.Run("preflight is answered without routing", func(t *testing.T) {
		rec := serve(srv, http.MethodOptions, "/api/analyses/"+id, "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Empty(t, rec.Body.String())
	})

	t.Run("headers on API and error responses", func(t *testing.T) {
		for _, path := range []string{"/api/analyses", "/api/analyses/missing"} {
			rec := serve(srv, http.MethodGet, path, "")
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
			assert.Equal(t, "no-cache, must-revalidate", rec.Header().Get("Cache-Control"), path)
		}
	})
}

func TestServer_AnalysisPayload(t *testing.T) {
	srv, id := newStoreServer(t, "")

	rec := serve(srv, http.MethodGet, "/api/analyses/"+id+"/payload", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result analysis.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 31, result.FrameCount)
	assert.InDelta(t, 55.0, result.OverallScores.Flow, 1e-9)
}

func TestServer_SettingsRoutes(t *testing.T) {
	t.Run("registered with a store", func(t *testing.T) {
		srv, _ := newStoreServer(t, "")

		rec := serve(srv, http.MethodPut, "/api/settings/quality", `{"value": "medium"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = serve(srv, http.MethodGet, "/api/settings", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"settings": {"quality": "medium"}}`, rec.Body.String())
	})

	t.Run("absent without a store", func(t *testing.T) {
		srv := New(Config{})

		assert.Nil(t, srv.Analyses())
		assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/api/settings", "").Code)
		assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/api/analyses", "").Code)
	})
}

func TestServer_EventsUpgrade(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	t.Run("plain GET is rejected", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/events")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("websocket upgrade", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
		require.NoError(t, err)
		defer conn.Close()

		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	})
}

func TestServer_ViewerFiles(t *testing.T) {
	staticDir := t.TempDir()
	dataJS := []byte("const flowStateData = {};\n")
	require.NoError(t, os.MkdirAll(filepath.Join(staticDir, "abc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "abc", "data.js"), dataJS, 0o644))

	srv, _ := newStoreServer(t, staticDir)

	rec := serve(srv, http.MethodGet, "/abc/data.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(dataJS, rec.Body.Bytes()))

	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/abc/data.json", "").Code)

	// API routes take precedence over the static tree.
	rec = serve(srv, http.MethodGet, "/api/analyses", "")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
