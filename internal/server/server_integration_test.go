package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/capture"
	"github.com/ayusman/flowstate/internal/detector"
	"github.com/ayusman/flowstate/internal/server/api"
	"github.com/ayusman/flowstate/internal/store"
	"github.com/ayusman/flowstate/internal/viewer"
)

// newTestServer wires a server over a temporary store with a mock detector.
// Frames directories are opened as mock sources of the given size.
func newTestServer(t *testing.T, frames int, det detector.Detector) (*Server, string) {
	t.Helper()

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	staticDir := filepath.Join(tmpDir, "viewer")
	srv := New(Config{
		StaticDir:      staticDir,
		Store:          s,
		Analyzer:       analysis.New(analysis.DefaultConfig(), det),
		ViewerSettings: viewer.Settings{Quality: "high", Theme: "dark", FrameRate: 30},
	})
	srv.Analyses().SetSourceOpener(func(dir string) (capture.Source, error) {
		return capture.NewMockSource(frames), nil
	})

	return srv, staticDir
}

func standingDetector() *detector.MockDetector {
	det := detector.NewMockDetector()
	det.SetFrame(detector.StandingPose())
	return det
}

func postAnalysis(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()

	resp, err := ts.Client().Post(ts.URL+"/api/analyses", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func TestAPI_AnalysisWorkflow(t *testing.T) {
	srv, staticDir := newTestServer(t, 35, standingDetector())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Run an analysis
	resp := postAnalysis(t, ts, `{"frames_dir": "/frames/practice", "title": "Practice"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID                     string  `json:"id"`
		Title                  string  `json:"title"`
		Smoothness             float64 `json:"smoothness"`
		FrameCount             int     `json:"frame_count"`
		InterpolatedFrameCount int     `json:"interpolated_frame_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	assert.Equal(t, "Practice", created.Title)
	assert.Equal(t, 35, created.FrameCount)
	assert.Equal(t, 341, created.InterpolatedFrameCount)

	// 2. List analyses
	resp, err := client.Get(ts.URL + "/api/analyses")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Analyses []struct {
			ID string `json:"id"`
		} `json:"analyses"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()

	require.Len(t, listed.Analyses, 1)
	assert.Equal(t, created.ID, listed.Analyses[0].ID)

	// 3. Fetch the payload
	resp, err = client.Get(ts.URL + "/api/analyses/" + created.ID + "/payload")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Contains(t, payload, "stick_figure_data")

	// 4. Viewer data is written and served
	assert.FileExists(t, filepath.Join(staticDir, created.ID, viewer.DataJSFile))
	resp, err = client.Get(ts.URL + "/" + created.ID + "/data.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 5. Delete analysis
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/analyses/"+created.ID, nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// 6. Verify deleted
	resp, err = client.Get(ts.URL + "/api/analyses/" + created.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_InsufficientDetection(t *testing.T) {
	// The detector never finds a person.
	srv, _ := newTestServer(t, 40, detector.NewMockDetector())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp := postAnalysis(t, ts, `{"frames_dir": "/frames/empty"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Error    string `json:"error"`
		Detected int    `json:"detected"`
		Total    int    `json:"total"`
		Required int    `json:"required"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 0, body.Detected)
	assert.Equal(t, 40, body.Total)
	assert.Equal(t, 30, body.Required)
	assert.Contains(t, body.Error, "0/40")
}

func TestAPI_Events(t *testing.T) {
	srv, _ := newTestServer(t, 30, standingDetector())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Hub().Clients() == 1
	}, 2*time.Second, 10*time.Millisecond, "hub should register the client")

	postAnalysis(t, ts, `{"frames_dir": "/frames/live"}`).Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	sawProgress := false
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))

		if msg.Type == "progress" {
			sawProgress = true
		}
		if msg.Type == "completed" {
			break
		}
	}

	assert.True(t, sawProgress, "expected progress events before completion")
}

func TestAPI_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, 1, detector.NewMockDetector())
	srv.Analyses().SetSourceOpener(api.OpenDir)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"frames_dir":`},
		{"missing frames_dir", `{"title": "x"}`},
		{"directory without images", `{"frames_dir": "` + t.TempDir() + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postAnalysis(t, ts, tt.body)
			resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAPI_ViewerPreferences(t *testing.T) {
	srv, staticDir := newTestServer(t, 30, standingDetector())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings/theme", strings.NewReader(`{"value": "light"}`))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postAnalysis(t, ts, `{"frames_dir": "/frames/prefs"}`)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	data, err := viewer.Read(filepath.Join(staticDir, created.ID))
	require.NoError(t, err)
	assert.Equal(t, "light", data.Settings.Theme)
	assert.Equal(t, "high", data.Settings.Quality)
}
