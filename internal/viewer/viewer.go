// Package viewer writes analysis results in the layout the 3D viewer loads.
package viewer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ayusman/flowstate/internal/analysis"
)

// Output file names.
const (
	DataJSONFile = "data.json"
	DataJSFile   = "data.js"
)

// jsVariable is the global the viewer reads its data from.
const jsVariable = "flowStateData"

// Info describes the analysed footage.
type Info struct {
	ID        string  `json:"id,omitempty"`
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frameRate"`
	Duration  float64 `json:"duration"`
}

// Settings are the renderer preferences.
type Settings struct {
	Quality         string  `json:"quality"`
	Theme           string  `json:"theme"`
	EnableParticles bool    `json:"enableParticles"`
	EnableShadows   bool    `json:"enableShadows"`
	FrameRate       float64 `json:"frameRate"`
}

// Preference keys that override Settings.
const (
	PrefQuality         = "quality"
	PrefTheme           = "theme"
	PrefEnableParticles = "enable_particles"
	PrefEnableShadows   = "enable_shadows"
)

// IsPreference reports whether key names a viewer preference.
func IsPreference(key string) bool {
	switch key {
	case PrefQuality, PrefTheme, PrefEnableParticles, PrefEnableShadows:
		return true
	}
	return false
}

// ErrInvalidPreference is returned for unknown preference keys and values
// outside a preference's range.
var ErrInvalidPreference = errors.New("invalid viewer preference")

// ValidatePreference checks value against the allowed values for key.
// Qualities are low, medium and high; themes are dark and light; the
// enable flags take strconv.ParseBool spellings.
func ValidatePreference(key, value string) error {
	switch key {
	case PrefQuality:
		switch value {
		case "low", "medium", "high":
			return nil
		}
		return fmt.Errorf("%w: quality must be low, medium or high, got %q", ErrInvalidPreference, value)
	case PrefTheme:
		switch value {
		case "dark", "light":
			return nil
		}
		return fmt.Errorf("%w: theme must be dark or light, got %q", ErrInvalidPreference, value)
	case PrefEnableParticles, PrefEnableShadows:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidPreference, key, value)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown key %q", ErrInvalidPreference, key)
}

// Apply returns s with the stored preferences applied. Unknown keys and
// malformed booleans are ignored.
func (s Settings) Apply(prefs map[string]string) Settings {
	if v, ok := prefs[PrefQuality]; ok && v != "" {
		s.Quality = v
	}
	if v, ok := prefs[PrefTheme]; ok && v != "" {
		s.Theme = v
	}
	if v, err := strconv.ParseBool(prefs[PrefEnableParticles]); err == nil {
		s.EnableParticles = v
	}
	if v, err := strconv.ParseBool(prefs[PrefEnableShadows]); err == nil {
		s.EnableShadows = v
	}
	return s
}

// Data is the document handed to the viewer.
type Data struct {
	PoseData  *analysis.Result `json:"poseData"`
	VideoInfo Info             `json:"videoInfo"`
	Settings  Settings         `json:"settings"`
}

// NewInfo returns an Info for a result, deriving the duration from its
// original frame count.
func NewInfo(title, source string, result *analysis.Result, frameRate float64) Info {
	if title == "" {
		title = "Untitled"
	}
	info := Info{
		Title:     title,
		Source:    source,
		FrameRate: frameRate,
	}
	if result != nil && frameRate > 0 {
		info.Duration = float64(result.FrameCount) / frameRate
	}
	return info
}

// Write stores the viewer data for result in dir as data.json and as
// data.js, a script declaring the flowStateData constant. dir is created
// if needed.
func Write(dir string, result *analysis.Result, info Info, settings Settings) error {
	if result == nil {
		return fmt.Errorf("viewer: nil result")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create viewer dir: %w", err)
	}

	data, err := json.MarshalIndent(Data{
		PoseData:  result,
		VideoInfo: info,
		Settings:  settings,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode viewer data: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, DataJSONFile), data); err != nil {
		return err
	}

	var js bytes.Buffer
	fmt.Fprintf(&js, "const %s = ", jsVariable)
	js.Write(data)
	js.WriteString(";\n")

	return writeAtomic(filepath.Join(dir, DataJSFile), js.Bytes())
}

// Read loads the viewer data previously written to dir.
func Read(dir string) (*Data, error) {
	raw, err := os.ReadFile(filepath.Join(dir, DataJSONFile))
	if err != nil {
		return nil, err
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode viewer data: %w", err)
	}
	return &data, nil
}

// writeAtomic writes through a temporary file so readers never see a
// partial document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
