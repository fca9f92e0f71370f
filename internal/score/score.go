// Package score computes heuristic movement-quality scores from a refined
// keypoint sequence.
//
// Every score lies in [0, 100]. Missing or low-confidence keypoints reduce
// the data a score is computed from; they never cause an error. A score
// with no qualifying data is 0.
package score

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/flowstate/internal/pose"
)

// Scale factors applied to the raw measurements.
const (
	smoothnessScale   = 10.0
	balanceScale      = 0.5
	energyScale       = 2.0
	handActivityScale = 5.0
	postureScale      = 0.5
)

// Scores is the aggregate score set of one analysis.
type Scores struct {
	Flow             float64 `json:"flow"`
	Balance          float64 `json:"balance"`
	Smoothness       float64 `json:"smoothness"`
	Energy           float64 `json:"energy"`
	HandActivity     float64 `json:"hand_activity"`
	PostureStability float64 `json:"posture_stability"`
}

// Config holds the scoring parameters.
type Config struct {
	// Threshold is the confidence a keypoint must exceed to be used.
	Threshold float64
}

// DefaultConfig returns a Config using the default visibility threshold.
func DefaultConfig() Config {
	return Config{Threshold: pose.DefaultVisibility}
}

// Compute returns all scores for seq. Flow averages smoothness, balance
// and energy; hand activity and posture stability are reported alongside.
func Compute(seq pose.Sequence, cfg Config) Scores {
	if len(seq) == 0 {
		return Scores{}
	}

	s := Scores{
		Smoothness:       Smoothness(seq, cfg),
		Balance:          Balance(seq, cfg),
		Energy:           Energy(seq, cfg),
		HandActivity:     HandActivity(seq, cfg),
		PostureStability: PostureStability(seq, cfg),
	}
	s.Flow = clamp((s.Smoothness + s.Balance + s.Energy) / 3)

	return s
}

// Smoothness scores how evenly body keypoints accelerate. For every body
// index visible in three consecutive frames the acceleration magnitude
// |(p[i+1]-p[i]) - (p[i]-p[i-1])| is collected; the score falls by 10 per
// unit of standard deviation across all magnitudes.
func Smoothness(seq pose.Sequence, cfg Config) float64 {
	if len(seq) < 2 {
		return 0
	}

	var magnitudes []float64
	for i := 1; i < len(seq)-1; i++ {
		prev, cur, next := seq[i-1].Body, seq[i].Body, seq[i+1].Body
		n := min(len(prev), len(cur), len(next))
		for k := 0; k < n; k++ {
			p0, p1, p2 := prev[k], cur[k], next[k]
			if !p0.Visible(cfg.Threshold) || !p1.Visible(cfg.Threshold) || !p2.Visible(cfg.Threshold) {
				continue
			}
			ax := (p2.X - p1.X) - (p1.X - p0.X)
			ay := (p2.Y - p1.Y) - (p1.Y - p0.Y)
			magnitudes = append(magnitudes, math.Hypot(ax, ay))
		}
	}

	if len(magnitudes) == 0 {
		return 0
	}
	return clamp(100 - stat.PopStdDev(magnitudes, nil)*smoothnessScale)
}

// Balance scores how closely the hip midpoint sits over the ankle
// midpoint, averaged over frames where both hips and both ankles are visible.
func Balance(seq pose.Sequence, cfg Config) float64 {
	var values []float64
	for _, f := range seq {
		if v, ok := frameBalance(f, cfg); ok {
			values = append(values, v)
		}
	}
	return meanOrZero(values)
}

func frameBalance(f pose.KeypointFrame, cfg Config) (float64, bool) {
	kps, ok := visible(f.Body, cfg.Threshold, pose.LeftHip, pose.RightHip, pose.LeftAnkle, pose.RightAnkle)
	if !ok {
		return 0, false
	}
	com := pose.Midpoint(kps[0], kps[1])
	bos := pose.Midpoint(kps[2], kps[3])
	return clamp(100 - pose.Distance2D(com, bos)*balanceScale), true
}

// Energy scores the average body displacement between consecutive frames.
// Each frame pair contributes the mean displacement of its visible body
// keypoints; a pair with none visible in both frames contributes 0.
func Energy(seq pose.Sequence, cfg Config) float64 {
	var perPair []float64
	for i := 1; i < len(seq); i++ {
		d := displacements(seq[i-1].Body, seq[i].Body, cfg.Threshold)
		if len(d) == 0 {
			perPair = append(perPair, 0)
			continue
		}
		perPair = append(perPair, stat.Mean(d, nil))
	}
	return clamp(meanOrZero(perPair) * energyScale)
}

// HandActivity scores the mean displacement of visible hand keypoints
// between consecutive frames, left and right hands pooled.
func HandActivity(seq pose.Sequence, cfg Config) float64 {
	var all []float64
	for i := 1; i < len(seq); i++ {
		all = append(all, displacements(seq[i-1].HandLeft, seq[i].HandLeft, cfg.Threshold)...)
		all = append(all, displacements(seq[i-1].HandRight, seq[i].HandRight, cfg.Threshold)...)
	}
	return clamp(meanOrZero(all) * handActivityScale)
}

// PostureStability scores the horizontal offset between the shoulder and
// hip centers, averaged over frames where nose, shoulders and hips are visible.
func PostureStability(seq pose.Sequence, cfg Config) float64 {
	var values []float64
	for _, f := range seq {
		if v, ok := framePosture(f, cfg); ok {
			values = append(values, v)
		}
	}
	return meanOrZero(values)
}

func framePosture(f pose.KeypointFrame, cfg Config) (float64, bool) {
	kps, ok := visible(f.Body, cfg.Threshold, pose.Nose, pose.LeftShoulder, pose.RightShoulder, pose.LeftHip, pose.RightHip)
	if !ok {
		return 0, false
	}
	shoulders := pose.Midpoint(kps[1], kps[2])
	hips := pose.Midpoint(kps[3], kps[4])
	deviation := math.Abs(shoulders.X - hips.X)
	return clamp(100 - deviation*postureScale), true
}

// displacements returns the 2D displacement of every index visible in both lists.
func displacements(a, b []pose.Keypoint, threshold float64) []float64 {
	n := min(len(a), len(b))
	var out []float64
	for k := 0; k < n; k++ {
		if !a[k].Visible(threshold) || !b[k].Visible(threshold) {
			continue
		}
		out = append(out, pose.Distance2D(a[k], b[k]))
	}
	return out
}

// visible returns the keypoints at the given indices if all exist and are
// visible.
func visible(kps []pose.Keypoint, threshold float64, indices ...int) ([]pose.Keypoint, bool) {
	out := make([]pose.Keypoint, len(indices))
	for i, idx := range indices {
		if idx >= len(kps) || !kps[idx].Visible(threshold) {
			return nil, false
		}
		out[i] = kps[idx]
	}
	return out, true
}

func meanOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// clamp limits v to [0, 100]. NaN becomes 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
