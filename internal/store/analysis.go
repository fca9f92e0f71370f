package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/score"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Analysis is the stored summary of one analysis run.
type Analysis struct {
	ID                     string       `json:"id"`
	Source                 string       `json:"source"`
	Title                  string       `json:"title"`
	Scores                 score.Scores `json:"overall_scores"`
	DetectionRate          float64      `json:"detection_rate"`
	FrameCount             int          `json:"frame_count"`
	InterpolatedFrameCount int          `json:"interpolated_frame_count"`
	DetectedFramesCount    int          `json:"detected_frames_count"`
	CreatedAt              time.Time    `json:"created_at"`
}

// NewAnalysis builds a summary row for result.
func NewAnalysis(title, source string, result *analysis.Result) *Analysis {
	return &Analysis{
		Source:                 source,
		Title:                  title,
		Scores:                 result.OverallScores,
		DetectionRate:          result.DetectionRate,
		FrameCount:             result.FrameCount,
		InterpolatedFrameCount: result.InterpolatedFrameCount,
		DetectedFramesCount:    result.DetectedFramesCount,
	}
}

// AnalysisRepository provides CRUD operations for analyses.
type AnalysisRepository struct {
	db *sql.DB
}

// Analyses returns the analysis repository for this store.
func (s *Store) Analyses() *AnalysisRepository {
	return &AnalysisRepository{db: s.db}
}

const analysisColumns = `id, source, title, flow, balance, smoothness, energy,
	hand_activity, posture_stability, detection_rate, frame_count,
	interpolated_frame_count, detected_frames_count, created_at`

// Save stores result under a new ID and returns its summary.
func (r *AnalysisRepository) Save(title, source string, result *analysis.Result) (*Analysis, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	a := NewAnalysis(title, source, result)
	if err := r.Create(a, payload); err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new analysis with its JSON payload. An empty ID is
// replaced with a generated UUID.
func (r *AnalysisRepository) Create(a *Analysis, payload []byte) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO analyses (`+analysisColumns+`, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Source, a.Title,
		a.Scores.Flow, a.Scores.Balance, a.Scores.Smoothness, a.Scores.Energy,
		a.Scores.HandActivity, a.Scores.PostureStability,
		a.DetectionRate, a.FrameCount, a.InterpolatedFrameCount, a.DetectedFramesCount,
		a.CreatedAt, string(payload),
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*Analysis, error) {
	a := &Analysis{}
	err := row.Scan(
		&a.ID, &a.Source, &a.Title,
		&a.Scores.Flow, &a.Scores.Balance, &a.Scores.Smoothness, &a.Scores.Energy,
		&a.Scores.HandActivity, &a.Scores.PostureStability,
		&a.DetectionRate, &a.FrameCount, &a.InterpolatedFrameCount, &a.DetectedFramesCount,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an analysis summary by its ID.
func (r *AnalysisRepository) GetByID(id string) (*Analysis, error) {
	a, err := scanAnalysis(r.db.QueryRow(
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetPayload retrieves the raw JSON result of an analysis.
func (r *AnalysisRepository) GetPayload(id string) ([]byte, error) {
	var payload string
	err := r.db.QueryRow(`SELECT payload FROM analyses WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(payload), nil
}

// GetResult retrieves and decodes the result of an analysis.
func (r *AnalysisRepository) GetResult(id string) (*analysis.Result, error) {
	payload, err := r.GetPayload(id)
	if err != nil {
		return nil, err
	}
	var result analysis.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &result, nil
}

// List retrieves all analysis summaries, newest first.
func (r *AnalysisRepository) List() ([]*Analysis, error) {
	rows, err := r.db.Query(
		`SELECT ` + analysisColumns + ` FROM analyses ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return analyses, nil
}

// Delete removes an analysis from the database by its ID.
func (r *AnalysisRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
