package motion

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ayusman/flowstate/internal/pose"
)

// DefaultWindow is the default smoothing window size in frames.
const DefaultWindow = 5

// SmoothPolicy selects how a window of frames collapses into one frame.
type SmoothPolicy string

const (
	// PolicyCenter keeps the centered frame of each window unchanged.
	PolicyCenter SmoothPolicy = "center"
	// PolicyGaussian averages keypoint positions across the window with
	// Gaussian weights centered on the output frame.
	PolicyGaussian SmoothPolicy = "gaussian"
)

// SmoothConfig holds the smoothing parameters.
type SmoothConfig struct {
	// Window is the number of frames considered around each output frame.
	Window int
	// Policy selects the window reduction.
	Policy SmoothPolicy
	// Sigma is the Gaussian standard deviation in frames.
	// Zero selects Window/4.
	Sigma float64
}

// DefaultSmoothConfig returns a SmoothConfig with the default window and
// the center policy.
func DefaultSmoothConfig() SmoothConfig {
	return SmoothConfig{
		Window: DefaultWindow,
		Policy: PolicyCenter,
	}
}

// Smooth applies a sliding window of cfg.Window frames over seq.
// The window for frame i spans [max(0, i-W/2), min(n, i+W/2+1)).
// Output length always equals input length. Sequences shorter than the
// window are returned as is.
func Smooth(seq pose.Sequence, cfg SmoothConfig) pose.Sequence {
	n := len(seq)
	w := cfg.Window
	if w <= 1 || n < w {
		return seq
	}

	var weight func(offset int) float64
	if cfg.Policy == PolicyGaussian {
		weight = gaussianWeights(cfg)
	}

	half := w / 2
	out := make(pose.Sequence, n)
	for i := range seq {
		start := max(0, i-half)
		end := min(n, i+half+1)

		if weight == nil {
			out[i] = seq[i]
			continue
		}
		out[i] = averageWindow(seq, i, start, end, weight)
	}

	return out
}

// gaussianWeights returns a weight function over frame offsets.
func gaussianWeights(cfg SmoothConfig) func(offset int) float64 {
	sigma := cfg.Sigma
	if sigma <= 0 {
		sigma = float64(cfg.Window) / 4
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma}

	return func(offset int) float64 {
		return dist.Prob(float64(offset))
	}
}

// averageWindow returns the frame at center with each keypoint position
// replaced by the weighted mean over seq[start:end]. Frames that lack an
// index do not contribute to it.
func averageWindow(seq pose.Sequence, center, start, end int, weight func(int) float64) pose.KeypointFrame {
	c := seq[center]
	window := seq[start:end]
	offset := start - center

	return pose.KeypointFrame{
		Body:       averageKeypoints(window, pose.PartBody, c.Body, offset, weight),
		HandLeft:   averageKeypoints(window, pose.PartHandLeft, c.HandLeft, offset, weight),
		HandRight:  averageKeypoints(window, pose.PartHandRight, c.HandRight, offset, weight),
		Face:       averageKeypoints(window, pose.PartFace, c.Face, offset, weight),
		Timestamp:  c.Timestamp,
		FrameIndex: c.FrameIndex,
	}
}

func averageKeypoints(window pose.Sequence, part pose.Part, center []pose.Keypoint, offset int, weight func(int) float64) []pose.Keypoint {
	if len(center) == 0 {
		return center
	}

	out := make([]pose.Keypoint, len(center))
	for k, ck := range center {
		var sx, sy, sz, sw float64
		for j, f := range window {
			kp, ok := f.At(part, k)
			if !ok {
				continue
			}
			wt := weight(offset + j)
			sx += wt * kp.X
			sy += wt * kp.Y
			sz += wt * kp.Z
			sw += wt
		}

		out[k] = ck
		if sw > 0 {
			out[k].X = sx / sw
			out[k].Y = sy / sw
			out[k].Z = sz / sw
		}
	}
	return out
}
