// Package config loads FlowState settings from defaults, an optional TOML
// file, a .env file and FLOWSTATE_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/ayusman/flowstate/internal/analysis"
	"github.com/ayusman/flowstate/internal/detector"
	"github.com/ayusman/flowstate/internal/motion"
	"github.com/ayusman/flowstate/internal/viewer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWSTATE_"

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "flowstate.db"

type DetectorConfig struct {
	Command             string  `toml:"command"`
	Script              string  `toml:"script"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	IdleTimeoutSeconds  int     `toml:"idle_timeout_seconds"`
}

type AnalysisConfig struct {
	MinFrames           int     `toml:"min_frames"`
	InterpolationFactor int     `toml:"interpolation_factor"`
	SmoothingWindow     int     `toml:"smoothing_window"`
	SmoothingPolicy     string  `toml:"smoothing_policy"`
	GaussianSigma       float64 `toml:"gaussian_sigma"`
	VisibilityThreshold float64 `toml:"visibility_threshold"`
	FrameRate           float64 `toml:"frame_rate"`
	Workers             int     `toml:"workers"`
}

type ViewerConfig struct {
	Quality         string `toml:"quality"`
	Theme           string `toml:"theme"`
	EnableParticles bool   `toml:"enable_particles"`
	EnableShadows   bool   `toml:"enable_shadows"`
}

type StorageConfig struct {
	OutputDir string `toml:"output_dir"`
	DataDir   string `toml:"data_dir"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Config holds all FlowState settings.
type Config struct {
	Debug    bool           `toml:"debug"`
	Detector DetectorConfig `toml:"detector"`
	Analysis AnalysisConfig `toml:"analysis"`
	Viewer   ViewerConfig   `toml:"viewer"`
	Storage  StorageConfig  `toml:"storage"`
	Server   ServerConfig   `toml:"server"`
}

// Default returns the built-in settings.
func Default() *Config {
	dataDir := ".flowstate"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".flowstate")
	}

	return &Config{
		Detector: DetectorConfig{
			ConfidenceThreshold: 0.7,
			IdleTimeoutSeconds:  30,
		},
		Analysis: AnalysisConfig{
			MinFrames:           analysis.DefaultMinDetectedFrames,
			InterpolationFactor: motion.DefaultUpscaleFactor,
			SmoothingWindow:     motion.DefaultWindow,
			SmoothingPolicy:     string(motion.PolicyCenter),
			VisibilityThreshold: 0.3,
			FrameRate:           analysis.DefaultFrameRate,
			Workers:             analysis.DefaultWorkers,
		},
		Viewer: ViewerConfig{
			Quality:         "high",
			Theme:           "dark",
			EnableParticles: true,
			EnableShadows:   true,
		},
		Storage: StorageConfig{
			OutputDir: "./output",
			DataDir:   dataDir,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load builds a Config from the defaults, the TOML file at path (skipped
// when path is empty), the given .env files (".env" when none) and the
// environment. Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Debug = getEnvBool("DEBUG", c.Debug)

	c.Detector.Command = getEnvString("DETECTOR_COMMAND", c.Detector.Command)
	c.Detector.Script = getEnvString("DETECTOR_SCRIPT", c.Detector.Script)
	c.Detector.ConfidenceThreshold = getEnvFloat("POSE_CONFIDENCE_THRESHOLD", c.Detector.ConfidenceThreshold)
	c.Detector.IdleTimeoutSeconds = getEnvInt("DETECTOR_IDLE_TIMEOUT", c.Detector.IdleTimeoutSeconds)

	c.Analysis.MinFrames = getEnvInt("ANALYSIS_MIN_FRAMES", c.Analysis.MinFrames)
	c.Analysis.InterpolationFactor = getEnvInt("INTERPOLATION_FACTOR", c.Analysis.InterpolationFactor)
	c.Analysis.SmoothingWindow = getEnvInt("SMOOTHING_WINDOW", c.Analysis.SmoothingWindow)
	c.Analysis.SmoothingPolicy = getEnvString("SMOOTHING_POLICY", c.Analysis.SmoothingPolicy)
	c.Analysis.GaussianSigma = getEnvFloat("GAUSSIAN_SIGMA", c.Analysis.GaussianSigma)
	c.Analysis.VisibilityThreshold = getEnvFloat("VISIBILITY_THRESHOLD", c.Analysis.VisibilityThreshold)
	c.Analysis.FrameRate = getEnvFloat("FRAME_RATE", c.Analysis.FrameRate)
	c.Analysis.Workers = getEnvInt("NUM_WORKERS", c.Analysis.Workers)

	c.Viewer.Quality = getEnvString("VIEWER_QUALITY", c.Viewer.Quality)
	c.Viewer.Theme = getEnvString("VIEWER_THEME", c.Viewer.Theme)
	c.Viewer.EnableParticles = getEnvBool("VIEWER_ENABLE_PARTICLES", c.Viewer.EnableParticles)
	c.Viewer.EnableShadows = getEnvBool("VIEWER_ENABLE_SHADOWS", c.Viewer.EnableShadows)

	c.Storage.OutputDir = getEnvString("OUTPUT_DIR", c.Storage.OutputDir)
	c.Storage.DataDir = getEnvString("DATA_DIR", c.Storage.DataDir)

	c.Server.Addr = getEnvString("SERVER_ADDR", c.Server.Addr)
}

// Validate checks that every setting is within range.
func (c *Config) Validate() error {
	if t := c.Detector.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1, got %v", t)
	}
	if t := c.Analysis.VisibilityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("visibility threshold must be between 0 and 1, got %v", t)
	}
	if c.Analysis.MinFrames < 0 {
		return fmt.Errorf("min frames must not be negative, got %d", c.Analysis.MinFrames)
	}
	if c.Analysis.InterpolationFactor < 1 {
		return fmt.Errorf("interpolation factor must be at least 1, got %d", c.Analysis.InterpolationFactor)
	}
	if w := c.Analysis.SmoothingWindow; w < 1 || w%2 == 0 {
		return fmt.Errorf("smoothing window must be a positive odd number, got %d", w)
	}
	switch motion.SmoothPolicy(c.Analysis.SmoothingPolicy) {
	case motion.PolicyCenter, motion.PolicyGaussian:
	default:
		return fmt.Errorf("unknown smoothing policy %q", c.Analysis.SmoothingPolicy)
	}
	if c.Analysis.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %v", c.Analysis.FrameRate)
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Analysis.Workers)
	}
	if err := viewer.ValidatePreference(viewer.PrefQuality, c.Viewer.Quality); err != nil {
		return err
	}
	return viewer.ValidatePreference(viewer.PrefTheme, c.Viewer.Theme)
}

// EnsureDirectories creates the output and data directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.OutputDir, c.Storage.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, DatabaseFile)
}

// AnalysisConfig returns the pipeline configuration.
func (c *Config) AnalysisConfig() analysis.Config {
	return analysis.Config{
		MinDetectedFrames: c.Analysis.MinFrames,
		UpscaleFactor:     c.Analysis.InterpolationFactor,
		Smoothing: motion.SmoothConfig{
			Window: c.Analysis.SmoothingWindow,
			Policy: motion.SmoothPolicy(c.Analysis.SmoothingPolicy),
			Sigma:  c.Analysis.GaussianSigma,
		},
		ConfidenceThreshold: c.Analysis.VisibilityThreshold,
		FrameRate:           c.Analysis.FrameRate,
		Workers:             c.Analysis.Workers,
		Debug:               c.Debug,
	}
}

// DetectorConfig returns the pose service configuration.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		Command:       c.Detector.Command,
		Script:        c.Detector.Script,
		MinConfidence: c.Detector.ConfidenceThreshold,
		IdleTimeout:   time.Duration(c.Detector.IdleTimeoutSeconds) * time.Second,
	}
}

// ViewerSettings returns the renderer settings written alongside the data.
func (c *Config) ViewerSettings() viewer.Settings {
	return viewer.Settings{
		Quality:         c.Viewer.Quality,
		Theme:           c.Viewer.Theme,
		EnableParticles: c.Viewer.EnableParticles,
		EnableShadows:   c.Viewer.EnableShadows,
		FrameRate:       c.Analysis.FrameRate,
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
