package detector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/flowstate/internal/pose"
)

func TestMockDetector(t *testing.T) {
	t.Run("returns empty frame by default", func(t *testing.T) {
		mock := NewMockDetector()

		frame, err := mock.Detect(nil)

		require.NoError(t, err)
		assert.False(t, frame.HasBody())
	})

	t.Run("returns configured frame", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetFrame(StandingPose())

		frame, err := mock.Detect(nil)

		require.NoError(t, err)
		assert.Len(t, frame.Body, pose.NumBody)
		assert.Len(t, frame.HandLeft, pose.NumHand)
	})

	t.Run("scripted frames come first", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetFrame(StandingPose())
		mock.SetFrames([]pose.KeypointFrame{{}, {}})

		first, _ := mock.Detect(nil)
		second, _ := mock.Detect(nil)
		third, _ := mock.Detect(nil)

		assert.False(t, first.HasBody())
		assert.False(t, second.HasBody())
		assert.True(t, third.HasBody())
		assert.Equal(t, 3, mock.Calls())
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetFrame(StandingPose())

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		frame, err := mock.Detect(nil)

		assert.ErrorIs(t, err, expectedErr)
		assert.False(t, frame.HasBody(), "expected empty frame when error is set")
	})

	t.Run("Close returns nil", func(t *testing.T) {
		assert.NoError(t, NewMockDetector().Close())
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*ServiceDetector)(nil)
	})
}

func TestStandingPose(t *testing.T) {
	frame := StandingPose()

	t.Run("lists match their topologies", func(t *testing.T) {
		assert.Len(t, frame.Body, pose.Size(pose.PartBody))
		assert.Len(t, frame.HandLeft, pose.Size(pose.PartHandLeft))
		assert.Len(t, frame.HandRight, pose.Size(pose.PartHandRight))
		assert.Empty(t, frame.Face)
	})

	t.Run("all keypoints are confident", func(t *testing.T) {
		for i, kp := range frame.Body {
			assert.True(t, kp.Visible(pose.DefaultVisibility), "body keypoint %d", i)
		}
	})

	t.Run("hips are centered over ankles", func(t *testing.T) {
		hips := pose.Midpoint(frame.Body[pose.LeftHip], frame.Body[pose.RightHip])
		ankles := pose.Midpoint(frame.Body[pose.LeftAnkle], frame.Body[pose.RightAnkle])
		assert.InDelta(t, hips.X, ankles.X, 1e-9)
	})

	t.Run("head is above the hips", func(t *testing.T) {
		assert.Less(t, frame.Body[pose.Nose].Y, frame.Body[pose.LeftHip].Y)
	})
}

func TestOpenHand(t *testing.T) {
	hand := OpenHand(100, 200)

	require.Len(t, hand, pose.NumHand)
	assert.Equal(t, 100.0, hand[pose.Wrist].X)
	assert.Equal(t, 200.0, hand[pose.Wrist].Y)

	// Fingertips extend further than the knuckles.
	assert.Greater(t, hand[pose.MiddleTip].Y, hand[pose.MiddleMCP].Y)
	assert.Greater(t, hand[pose.IndexTip].Y, hand[pose.IndexMCP].Y)
}

func TestExchange(t *testing.T) {
	t.Run("writes length-prefixed request and parses response", func(t *testing.T) {
		var req bytes.Buffer
		resp := bufio.NewReader(strings.NewReader(
			`{"body":[{"x":1,"y":2,"z":0.5,"confidence":0.9}],"hand_left":[],"hand_right":[{"x":3,"y":4,"visibility":0.8}],"face":[]}` + "\n"))

		frame, err := exchange(&req, resp, []byte("jpeg"))
		require.NoError(t, err)

		raw := req.Bytes()
		require.Len(t, raw, 8)
		assert.Equal(t, uint32(4), binary.BigEndian.Uint32(raw[:4]))
		assert.Equal(t, "jpeg", string(raw[4:]))

		require.Len(t, frame.Body, 1)
		assert.Equal(t, pose.Keypoint{X: 1, Y: 2, Z: 0.5, Confidence: 0.9}, frame.Body[0])
		assert.Empty(t, frame.HandLeft)
		assert.NotNil(t, frame.HandLeft)
		assert.NotNil(t, frame.Face)
		require.Len(t, frame.HandRight, 1)
		assert.Equal(t, 0.8, frame.HandRight[0].Confidence)
	})

	t.Run("service error", func(t *testing.T) {
		resp := bufio.NewReader(strings.NewReader(`{"error":"model not loaded"}` + "\n"))

		_, err := exchange(&bytes.Buffer{}, resp, []byte("x"))
		assert.ErrorContains(t, err, "model not loaded")
	})

	t.Run("malformed response", func(t *testing.T) {
		resp := bufio.NewReader(strings.NewReader("not json\n"))

		_, err := exchange(&bytes.Buffer{}, resp, []byte("x"))
		assert.ErrorContains(t, err, "parse response")
	})

	t.Run("closed pipe", func(t *testing.T) {
		resp := bufio.NewReader(strings.NewReader(""))

		_, err := exchange(&bytes.Buffer{}, resp, []byte("x"))
		assert.ErrorContains(t, err, "read response")
	})
}

func TestNewServiceDetector_MissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Script = t.TempDir() + "/missing.py"

	_, err := NewServiceDetector(cfg)
	assert.Error(t, err)
}
