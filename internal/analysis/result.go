package analysis

import (
	"github.com/ayusman/flowstate/internal/pose"
	"github.com/ayusman/flowstate/internal/score"
	"github.com/ayusman/flowstate/internal/skeleton"
)

// Result is the payload produced by one analysis.
type Result struct {
	PoseFrames             pose.Sequence      `json:"pose_frames"`
	StickFigureData        StickFigureData    `json:"stick_figure_data"`
	OverallScores          score.Scores       `json:"overall_scores"`
	FrameScores            []score.FrameScore `json:"frame_scores"`
	DetectionRate          float64            `json:"detection_rate"`
	FrameCount             int                `json:"frame_count"`
	InterpolatedFrameCount int                `json:"interpolated_frame_count"`
	DetectedFramesCount    int                `json:"detected_frames_count"`
}

// StickFigureData holds the drawable skeleton of every refined frame along
// with the topology needed to label it.
type StickFigureData struct {
	Frames []skeleton.FrameGraph `json:"frames"`
	skeleton.Topology
}
