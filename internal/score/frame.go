package score

import "github.com/ayusman/flowstate/internal/pose"

// FrameScore holds the scores that are defined for a single frame.
// A nil value means the frame lacked the keypoints the score needs.
type FrameScore struct {
	Timestamp        float64  `json:"timestamp"`
	FrameIndex       int      `json:"frame_idx"`
	Balance          *float64 `json:"balance"`
	PostureStability *float64 `json:"posture_stability"`
}

// PerFrame returns balance and posture stability for every frame of seq.
func PerFrame(seq pose.Sequence, cfg Config) []FrameScore {
	out := make([]FrameScore, len(seq))
	for i, f := range seq {
		out[i] = FrameScore{
			Timestamp:  f.Timestamp,
			FrameIndex: f.FrameIndex,
		}
		if v, ok := frameBalance(f, cfg); ok {
			out[i].Balance = &v
		}
		if v, ok := framePosture(f, cfg); ok {
			out[i].PostureStability = &v
		}
	}
	return out
}
