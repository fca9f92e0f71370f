package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/flowstate/internal/pose"
)

// ServiceDetector implements Detector using a pose model service subprocess.
//
// Each request is a 4-byte big-endian length followed by a JPEG image on
// the service's stdin. The service answers with one JSON line holding the
// body, hand and face keypoints.
type ServiceDetector struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewServiceDetector creates a new service detector.
// The service process is started lazily on first detection.
func NewServiceDetector(config Config) (*ServiceDetector, error) {
	script := config.Script
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, errors.New("pose_service.py not found")
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("pose service script: %w", err)
	}

	return &ServiceDetector{
		config: config,
		script: script,
	}, nil
}

// Detect sends the frame to the service and returns the detected keypoints.
func (d *ServiceDetector) Detect(frame *gocv.Mat) (pose.KeypointFrame, error) {
	if frame == nil || frame.Empty() {
		return pose.KeypointFrame{}, nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return pose.KeypointFrame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return pose.KeypointFrame{}, err
	}

	result, err := exchange(d.stdin, d.stdout, buf.GetBytes())
	if err != nil {
		// The pipe is in an unknown state; restart on the next request.
		d.shutdown()
		return pose.KeypointFrame{}, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return result, nil
}

// Close shuts down the service process.
func (d *ServiceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// exchange performs one request/response round trip.
func exchange(w io.Writer, r *bufio.Reader, data []byte) (pose.KeypointFrame, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return pose.KeypointFrame{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return pose.KeypointFrame{}, fmt.Errorf("write data: %w", err)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return pose.KeypointFrame{}, fmt.Errorf("read response: %w", err)
	}

	var response jsonFrame
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return pose.KeypointFrame{}, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return pose.KeypointFrame{}, fmt.Errorf("pose service: %s", response.Error)
	}

	return response.toKeypointFrame(), nil
}

func (d *ServiceDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	command := d.config.Command
	if command == "" {
		command = findVenvPython()
	}
	if command == "" {
		command = "python3"
	}

	d.cmd = exec.Command(command, d.script,
		"--min-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64))

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	log.Printf("Started pose service %s (pid %d)", filepath.Base(d.script), d.cmd.Process.Pid)
	return nil
}

func (d *ServiceDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *ServiceDetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if time.Since(d.lastUsed) < d.config.IdleTimeout {
			return
		}
		d.shutdown()
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".flowstate/scripts/pose_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".flowstate/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonFrame represents the JSON structure returned by the pose service.
type jsonFrame struct {
	Body      []jsonKeypoint `json:"body"`
	HandLeft  []jsonKeypoint `json:"hand_left"`
	HandRight []jsonKeypoint `json:"hand_right"`
	Face      []jsonKeypoint `json:"face"`
	Error     string         `json:"error,omitempty"`
}

type jsonKeypoint struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Confidence *float64 `json:"confidence"`
	Visibility *float64 `json:"visibility"`
}

func (f jsonFrame) toKeypointFrame() pose.KeypointFrame {
	return pose.KeypointFrame{
		Body:      toKeypoints(f.Body),
		HandLeft:  toKeypoints(f.HandLeft),
		HandRight: toKeypoints(f.HandRight),
		Face:      toKeypoints(f.Face),
	}
}

// toKeypoints converts service keypoints, reading MediaPipe-style
// visibility when no confidence is given.
func toKeypoints(in []jsonKeypoint) []pose.Keypoint {
	out := make([]pose.Keypoint, len(in))
	for i, p := range in {
		var conf float64
		switch {
		case p.Confidence != nil:
			conf = *p.Confidence
		case p.Visibility != nil:
			conf = *p.Visibility
		}
		out[i] = pose.Keypoint{X: p.X, Y: p.Y, Z: p.Z, Confidence: conf}
	}
	return out
}
