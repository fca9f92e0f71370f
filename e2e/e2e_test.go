package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/capture"
	"github.com/ayusman/flowstate/internal/detector"
	"github.com/ayusman/flowstate/internal/pose"
	"github.com/ayusman/flowstate/internal/server"
	"github.com/ayusman/flowstate/internal/store"
	"github.com/ayusman/flowstate/internal/viewer"
)

// swayingFrames returns n detections of a figure shifting its weight from
// side to side.
func swayingFrames(n int) []pose.KeypointFrame {
	frames := make([]pose.KeypointFrame, n)
	for i := range frames {
		f := detector.StandingPose()
		dx := float64(i%10) * 2
		for j := range f.Body {
			f.Body[j].X += dx
		}
		frames[i] = f
	}
	return frames
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	require.NoError(t, err)
	defer s.Close()

	det := detector.NewMockDetector()
	det.SetFrames(swayingFrames(40))

	cfg := analysis.DefaultConfig()
	cfg.Workers = 1
	analyzer := analysis.New(cfg, det)

	var result *analysis.Result
	t.Run("Analyze", func(t *testing.T) {
		result, err = analyzer.Analyze(context.Background(), capture.NewMockSource(40))
		require.NoError(t, err)

		assert.Equal(t, 40, result.FrameCount)
		assert.Equal(t, 40, result.DetectedFramesCount)
		assert.Equal(t, 391, result.InterpolatedFrameCount)
		assert.Len(t, result.PoseFrames, 391)
		assert.Len(t, result.FrameScores, 391)
		assert.InDelta(t, 1.0, result.DetectionRate, 1e-9)

		for _, v := range []float64{
			result.OverallScores.Flow,
			result.OverallScores.Balance,
			result.OverallScores.Smoothness,
			result.OverallScores.Energy,
			result.OverallScores.HandActivity,
			result.OverallScores.PostureStability,
		} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	})
	require.NotNil(t, result)

	var saved *store.Analysis
	t.Run("StoreAndViewer", func(t *testing.T) {
		saved, err = s.Analyses().Save("Sway", "/frames/sway", result)
		require.NoError(t, err)

		info := viewer.NewInfo("Sway", "/frames/sway", result, analysis.DefaultFrameRate)
		info.ID = saved.ID
		require.NoError(t, viewer.Write(filepath.Join(tmpDir, "viewer", saved.ID), result, info, viewer.Settings{Quality: "high"}))

		data, err := viewer.Read(filepath.Join(tmpDir, "viewer", saved.ID))
		require.NoError(t, err)
		assert.Equal(t, result.InterpolatedFrameCount, data.PoseData.InterpolatedFrameCount)
		assert.InDelta(t, 40.0/30.0, data.VideoInfo.Duration, 1e-9)
	})
	require.NotNil(t, saved)

	srv := server.New(server.Config{
		StaticDir: filepath.Join(tmpDir, "viewer"),
		Store:     s,
		Analyzer:  analyzer,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	t.Run("ListOverAPI", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/analyses")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed struct {
			Analyses []struct {
				ID   string  `json:"id"`
				Flow float64 `json:"flow"`
			} `json:"analyses"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
		require.Len(t, listed.Analyses, 1)
		assert.Equal(t, saved.ID, listed.Analyses[0].ID)
		assert.InDelta(t, result.OverallScores.Flow, listed.Analyses[0].Flow, 1e-9)
	})

	t.Run("PayloadRoundTrip", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/analyses/" + saved.ID + "/payload")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got analysis.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, result.InterpolatedFrameCount, len(got.StickFigureData.Frames))
		assert.Equal(t, result.OverallScores, got.OverallScores)
	})

	t.Run("ViewerServed", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/" + saved.ID + "/data.js")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestE2E_InsufficientDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	det := detector.NewMockDetector()
	frames := swayingFrames(40)
	// Only the first 20 frames contain a person.
	for i := 20; i < len(frames); i++ {
		frames[i] = pose.KeypointFrame{}
	}
	det.SetFrames(frames)

	cfg := analysis.DefaultConfig()
	cfg.Workers = 1
	_, err := analysis.New(cfg, det).Analyze(context.Background(), capture.NewMockSource(40))

	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrInsufficientDetection))

	var detErr *analysis.InsufficientDetectionError
	require.True(t, errors.As(err, &detErr))
	assert.Equal(t, 20, detErr.Detected)
	assert.Equal(t, 40, detErr.Total)
	assert.True(t, strings.Contains(err.Error(), "20/40"))
}
