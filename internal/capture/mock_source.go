package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource serves a fixed number of frames for testing.
// Frames are nil unless mats were supplied.
type MockSource struct {
	mu     sync.Mutex
	count  int
	frames []*gocv.Mat
	failed map[int]bool
	reads  int
}

// NewMockSource creates a source of n frames without image data.
func NewMockSource(n int) *MockSource {
	return &MockSource{count: n, failed: make(map[int]bool)}
}

// NewMockSourceFromMats creates a source that plays back clones of frames.
func NewMockSourceFromMats(frames []*gocv.Mat) *MockSource {
	return &MockSource{count: len(frames), frames: frames, failed: make(map[int]bool)}
}

// FailAt makes reads of frame i return an error.
func (s *MockSource) FailAt(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[i] = true
}

// Reads returns the number of Read calls made so far.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *MockSource) Len() int { return s.count }

func (s *MockSource) Name(i int) string { return fmt.Sprintf("frame_%05d", i) }

func (s *MockSource) Read(i int) (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if i < 0 || i >= s.count {
		return nil, ErrOutOfRange
	}
	if s.failed[i] {
		return nil, fmt.Errorf("failed to decode %s", s.Name(i))
	}
	if s.frames == nil {
		return nil, nil
	}

	// Clone the frame so the original isn't modified
	frame := s.frames[i].Clone()
	return &frame, nil
}
