package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gorilla/mux"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/capture"
	"github.com/ayusman/flowstate/internal/store"
	"github.com/ayusman/flowstate/internal/viewer"
)

// Analyzer runs the pose pipeline over a frame source.
type Analyzer interface {
	Analyze(ctx context.Context, src capture.Source) (*analysis.Result, error)
}

// Publisher broadcasts notifications to connected clients.
type Publisher interface {
	Publish(v any)
}

// SourceOpener opens the frames at a path.
type SourceOpener func(dir string) (capture.Source, error)

// OpenDir opens a directory of image frames.
func OpenDir(dir string) (capture.Source, error) {
	src, err := capture.NewDirSource(dir)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// AnalysesHandler handles HTTP requests for analysis resources.
type AnalysesHandler struct {
	store     *store.Store
	analyzer  Analyzer
	publisher Publisher
	open      SourceOpener

	// When viewerDir is set, every new analysis also gets viewer data in
	// viewerDir/<id>.
	viewerDir      string
	viewerSettings viewer.Settings
	frameRate      float64

	// running serializes analyses; they saturate the detector.
	running sync.Mutex
}

// NewAnalysesHandler creates a handler over s. analyzer may be nil, which
// disables POST.
func NewAnalysesHandler(s *store.Store, analyzer Analyzer) *AnalysesHandler {
	return &AnalysesHandler{
		store:     s,
		analyzer:  analyzer,
		open:      OpenDir,
		frameRate: analysis.DefaultFrameRate,
	}
}

// SetPublisher sets where completion notifications are sent.
func (h *AnalysesHandler) SetPublisher(p Publisher) {
	h.publisher = p
}

// SetSourceOpener replaces how frames directories are opened.
func (h *AnalysesHandler) SetSourceOpener(open SourceOpener) {
	h.open = open
}

// SetViewerOutput enables writing viewer data for new analyses.
func (h *AnalysesHandler) SetViewerOutput(dir string, settings viewer.Settings) {
	h.viewerDir = dir
	h.viewerSettings = settings
	if settings.FrameRate > 0 {
		h.frameRate = settings.FrameRate
	}
}

// RegisterRoutes registers the analysis routes on router.
func (h *AnalysesHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/analyses").Subrouter()

	api.HandleFunc("", h.list).Methods(http.MethodGet)
	api.HandleFunc("", h.create).Methods(http.MethodPost)
	api.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.delete).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/payload", h.payload).Methods(http.MethodGet)
}

// Request and response types

type createAnalysisRequest struct {
	FramesDir string `json:"frames_dir"`
	Title     string `json:"title"`
}

type analysisResponse struct {
	ID                     string  `json:"id"`
	Title                  string  `json:"title"`
	Source                 string  `json:"source"`
	Flow                   float64 `json:"flow"`
	Balance                float64 `json:"balance"`
	Smoothness             float64 `json:"smoothness"`
	Energy                 float64 `json:"energy"`
	HandActivity           float64 `json:"hand_activity"`
	PostureStability       float64 `json:"posture_stability"`
	DetectionRate          float64 `json:"detection_rate"`
	FrameCount             int     `json:"frame_count"`
	InterpolatedFrameCount int     `json:"interpolated_frame_count"`
	DetectedFramesCount    int     `json:"detected_frames_count"`
	CreatedAt              string  `json:"created_at"`
}

type listAnalysesResponse struct {
	Analyses []analysisResponse `json:"analyses"`
}

type insufficientDetectionResponse struct {
	Error    string `json:"error"`
	Detected int    `json:"detected"`
	Total    int    `json:"total"`
	Required int    `json:"required"`
}

// notification is broadcast to event subscribers when an analysis ends.
type notification struct {
	Type     string            `json:"type"`
	Analysis *analysisResponse `json:"analysis,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// toResponse converts a store.Analysis to an analysisResponse.
func toResponse(a *store.Analysis) analysisResponse {
	return analysisResponse{
		ID:                     a.ID,
		Title:                  a.Title,
		Source:                 a.Source,
		Flow:                   a.Scores.Flow,
		Balance:                a.Scores.Balance,
		Smoothness:             a.Scores.Smoothness,
		Energy:                 a.Scores.Energy,
		HandActivity:           a.Scores.HandActivity,
		PostureStability:       a.Scores.PostureStability,
		DetectionRate:          a.DetectionRate,
		FrameCount:             a.FrameCount,
		InterpolatedFrameCount: a.InterpolatedFrameCount,
		DetectedFramesCount:    a.DetectedFramesCount,
		CreatedAt:              a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// list handles GET /api/analyses and returns all analyses.
func (h *AnalysesHandler) list(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.store.Analyses().List()
	if err != nil {
		log.Printf("Failed to list analyses: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list analyses")
		return
	}

	response := listAnalysesResponse{
		Analyses: make([]analysisResponse, 0, len(analyses)),
	}
	for _, a := range analyses {
		response.Analyses = append(response.Analyses, toResponse(a))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/analyses/{id} and returns a single analysis summary.
func (h *AnalysesHandler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	a, err := h.store.Analyses().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get analysis")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(a))
}

// payload handles GET /api/analyses/{id}/payload and returns the stored result.
func (h *AnalysesHandler) payload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	payload, err := h.store.Analyses().GetPayload(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get analysis payload")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// delete handles DELETE /api/analyses/{id}.
func (h *AnalysesHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Analyses().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete analysis")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// create handles POST /api/analyses. It runs the pipeline over the frames
// directory, stores the result and returns its summary.
func (h *AnalysesHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Analysis is not available")
		return
	}

	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FramesDir == "" {
		writeError(w, http.StatusBadRequest, "frames_dir is required")
		return
	}

	src, err := h.open(req.FramesDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.running.TryLock() {
		writeError(w, http.StatusConflict, "An analysis is already running")
		return
	}
	defer h.running.Unlock()

	log.Printf("Analyzing %d frames from %s", src.Len(), req.FramesDir)

	result, err := h.analyzer.Analyze(r.Context(), src)
	if err != nil {
		h.notify(notification{Type: "failed", Error: err.Error()})

		var detErr *analysis.InsufficientDetectionError
		if errors.As(err, &detErr) {
			writeJSON(w, http.StatusUnprocessableEntity, insufficientDetectionResponse{
				Error:    detErr.Error(),
				Detected: detErr.Detected,
				Total:    detErr.Total,
				Required: detErr.Required,
			})
			return
		}
		log.Printf("Analysis of %s failed: %v", req.FramesDir, err)
		writeError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	saved, err := h.store.Analyses().Save(req.Title, req.FramesDir, result)
	if err != nil {
		log.Printf("Failed to save analysis: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save analysis")
		return
	}

	if h.viewerDir != "" {
		settings := h.viewerSettings
		if prefs, err := h.store.Settings().All(); err == nil {
			settings = settings.Apply(prefs)
		}

		info := viewer.NewInfo(req.Title, req.FramesDir, result, h.frameRate)
		info.ID = saved.ID
		if err := viewer.Write(filepath.Join(h.viewerDir, saved.ID), result, info, settings); err != nil {
			log.Printf("Failed to write viewer data for %s: %v", saved.ID, err)
		}
	}

	response := toResponse(saved)
	h.notify(notification{Type: "completed", Analysis: &response})

	writeJSON(w, http.StatusCreated, response)
}

func (h *AnalysesHandler) notify(n notification) {
	if h.publisher != nil {
		h.publisher.Publish(n)
	}
}
