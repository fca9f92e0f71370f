// Package motion refines a keypoint sequence in time: linear interpolation
// to a higher frame density and sliding-window jitter smoothing.
package motion

import (
	"math"

	"github.com/ayusman/flowstate/internal/pose"
)

// DefaultUpscaleFactor is the number of output frames per input frame interval.
const DefaultUpscaleFactor = 10

// Interpolate expands seq by inserting factor-1 linearly interpolated frames
// between every pair of consecutive frames. The result has (n-1)*factor+1
// frames and every input frame appears unchanged at position i*factor.
//
// Sequences shorter than 2 frames and factors below 2 are returned as is.
func Interpolate(seq pose.Sequence, factor int) pose.Sequence {
	n := len(seq)
	if n < 2 || factor <= 1 {
		return seq
	}

	out := make(pose.Sequence, 0, (n-1)*factor+1)
	for i := 0; i < n-1; i++ {
		f1, f2 := seq[i], seq[i+1]
		out = append(out, f1)
		for j := 1; j < factor; j++ {
			alpha := float64(j) / float64(factor)
			out = append(out, lerpFrame(f1, f2, alpha))
		}
	}
	out = append(out, seq[n-1])

	return out
}

// lerpFrame builds the frame at alpha between f1 and f2.
func lerpFrame(f1, f2 pose.KeypointFrame, alpha float64) pose.KeypointFrame {
	return pose.KeypointFrame{
		Body:       lerpKeypoints(f1.Body, f2.Body, alpha),
		HandLeft:   lerpKeypoints(f1.HandLeft, f2.HandLeft, alpha),
		HandRight:  lerpKeypoints(f1.HandRight, f2.HandRight, alpha),
		Face:       lerpKeypoints(f1.Face, f2.Face, alpha),
		Timestamp:  lerp(f1.Timestamp, f2.Timestamp, alpha),
		FrameIndex: int(lerp(float64(f1.FrameIndex), float64(f2.FrameIndex), alpha)),
	}
}

// lerpKeypoints interpolates the indices both lists share.
// Indices present in only one list are dropped rather than invented.
func lerpKeypoints(a, b []pose.Keypoint, alpha float64) []pose.Keypoint {
	n := min(len(a), len(b))
	out := make([]pose.Keypoint, n)
	for k := 0; k < n; k++ {
		out[k] = pose.Keypoint{
			X:          lerp(a[k].X, b[k].X, alpha),
			Y:          lerp(a[k].Y, b[k].Y, alpha),
			Z:          lerp(a[k].Z, b[k].Z, alpha),
			Confidence: math.Min(a[k].Confidence, b[k].Confidence),
		}
	}
	return out
}

func lerp(p1, p2, alpha float64) float64 {
	return p1 + alpha*(p2-p1)
}
