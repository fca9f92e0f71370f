// Package detector defines the pose detector contract and its implementations.
package detector

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/flowstate/internal/pose"
)

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// Detect analyzes an image and returns the body, hand and face keypoints
	// of the detected subject. When no person is found it returns a frame
	// with empty keypoint lists and a nil error.
	// Implementations must be safe for concurrent use.
	Detect(frame *gocv.Mat) (pose.KeypointFrame, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// Command is the interpreter used to run the pose service script.
	// Empty selects a virtual environment Python, then python3.
	Command string

	// Script is the path to the pose service script. Empty searches the
	// default locations.
	Script string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0)
	// passed to the pose model.
	MinConfidence float64

	// IdleTimeout stops the service process after this long without requests.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.7,
		IdleTimeout:   30 * time.Second,
	}
}
