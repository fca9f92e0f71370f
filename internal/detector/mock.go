package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/flowstate/internal/pose"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	frame  pose.KeypointFrame
	script []pose.KeypointFrame
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFrame sets the frame returned by Detect once any scripted frames are used up.
func (m *MockDetector) SetFrame(frame pose.KeypointFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
}

// SetFrames scripts the frames returned by successive Detect calls.
func (m *MockDetector) SetFrames(frames []pose.KeypointFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append([]pose.KeypointFrame(nil), frames...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Detect calls made so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next scripted frame, the configured frame, or the error.
func (m *MockDetector) Detect(frame *gocv.Mat) (pose.KeypointFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return pose.KeypointFrame{}, m.err
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	return m.frame, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingPose returns a preset frame of a person standing upright and
// facing the camera, in pixel coordinates, with both hands open.
func StandingPose() pose.KeypointFrame {
	body := make([]pose.Keypoint, pose.Size(pose.PartBody))

	// Head
	body[pose.Nose] = pose.Keypoint{X: 320, Y: 100, Confidence: 0.98}
	body[pose.LeftEye] = pose.Keypoint{X: 330, Y: 90, Confidence: 0.97}
	body[pose.RightEye] = pose.Keypoint{X: 310, Y: 90, Confidence: 0.97}
	body[pose.LeftEar] = pose.Keypoint{X: 345, Y: 95, Confidence: 0.90}
	body[pose.RightEar] = pose.Keypoint{X: 295, Y: 95, Confidence: 0.90}

	// Arms hanging at the sides
	body[pose.LeftShoulder] = pose.Keypoint{X: 370, Y: 170, Confidence: 0.95}
	body[pose.RightShoulder] = pose.Keypoint{X: 270, Y: 170, Confidence: 0.95}
	body[pose.LeftElbow] = pose.Keypoint{X: 385, Y: 250, Confidence: 0.92}
	body[pose.RightElbow] = pose.Keypoint{X: 255, Y: 250, Confidence: 0.92}
	body[pose.LeftWrist] = pose.Keypoint{X: 390, Y: 320, Confidence: 0.90}
	body[pose.RightWrist] = pose.Keypoint{X: 250, Y: 320, Confidence: 0.90}

	// Hips directly above ankles
	body[pose.LeftHip] = pose.Keypoint{X: 350, Y: 330, Confidence: 0.94}
	body[pose.RightHip] = pose.Keypoint{X: 290, Y: 330, Confidence: 0.94}
	body[pose.LeftKnee] = pose.Keypoint{X: 352, Y: 430, Confidence: 0.93}
	body[pose.RightKnee] = pose.Keypoint{X: 288, Y: 430, Confidence: 0.93}
	body[pose.LeftAnkle] = pose.Keypoint{X: 350, Y: 530, Confidence: 0.91}
	body[pose.RightAnkle] = pose.Keypoint{X: 290, Y: 530, Confidence: 0.91}

	return pose.KeypointFrame{
		Body:      body,
		HandLeft:  OpenHand(390, 330),
		HandRight: OpenHand(250, 330),
	}
}

// OpenHand returns 21 hand keypoints of an open palm with the wrist at
// (x, y) and fingers extended downward.
func OpenHand(x, y float64) []pose.Keypoint {
	hand := make([]pose.Keypoint, pose.Size(pose.PartHandLeft))
	hand[pose.Wrist] = pose.Keypoint{X: x, Y: y, Confidence: 0.9}

	// Each finger is a chain of four joints fanned out from the wrist.
	spread := []float64{-12, -6, 0, 6, 12}
	for f, dx := range spread {
		for j := 0; j < 4; j++ {
			step := float64(j + 1)
			hand[1+f*4+j] = pose.Keypoint{
				X:          x + dx*step*0.5,
				Y:          y + 8*step,
				Z:          -0.01 * step,
				Confidence: 0.9,
			}
		}
	}

	return hand
}
