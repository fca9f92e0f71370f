// Package skeleton turns keypoint frames into drawable line segments using
// the fixed body and hand topologies.
package skeleton

import (
	"math"

	"github.com/ayusman/flowstate/internal/pose"
)

// Point2D is a segment endpoint in image coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one drawable topology edge.
type Segment struct {
	From       Point2D `json:"from"`
	To         Point2D `json:"to"`
	Confidence float64 `json:"confidence"`
}

// FrameGraph holds the segments of a single frame.
type FrameGraph struct {
	Timestamp  float64   `json:"timestamp"`
	FrameIndex int       `json:"frame_idx"`
	Body       []Segment `json:"body_connections"`
	HandLeft   []Segment `json:"hand_connections_left"`
	HandRight  []Segment `json:"hand_connections_right"`
}

// BuildGraph returns one segment for every edge of part's topology whose
// endpoints both exist in kps with confidence above threshold. The segment
// confidence is the lower of the two. Missing keypoints yield fewer
// segments, never an error.
func BuildGraph(kps []pose.Keypoint, part pose.Part, threshold float64) []Segment {
	edges := pose.Edges(part)
	segments := make([]Segment, 0, len(edges))

	for _, e := range edges {
		a, b := e[0], e[1]
		if a < 0 || b < 0 || a >= len(kps) || b >= len(kps) {
			continue
		}
		ka, kb := kps[a], kps[b]
		if !ka.Visible(threshold) || !kb.Visible(threshold) {
			continue
		}
		segments = append(segments, Segment{
			From:       Point2D{X: ka.X, Y: ka.Y},
			To:         Point2D{X: kb.X, Y: kb.Y},
			Confidence: math.Min(ka.Confidence, kb.Confidence),
		})
	}

	return segments
}

// BuildFrame builds the body and hand graphs of frame.
func BuildFrame(frame pose.KeypointFrame, threshold float64) FrameGraph {
	return FrameGraph{
		Timestamp:  frame.Timestamp,
		FrameIndex: frame.FrameIndex,
		Body:       BuildGraph(frame.Body, pose.PartBody, threshold),
		HandLeft:   BuildGraph(frame.HandLeft, pose.PartHandLeft, threshold),
		HandRight:  BuildGraph(frame.HandRight, pose.PartHandRight, threshold),
	}
}

// BuildSequence builds a graph for every frame of seq, in order.
func BuildSequence(seq pose.Sequence, threshold float64) []FrameGraph {
	graphs := make([]FrameGraph, len(seq))
	for i, f := range seq {
		graphs[i] = BuildFrame(f, threshold)
	}
	return graphs
}

// Topology describes the skeleton layout for renderers.
type Topology struct {
	KeypointNames map[string][]string    `json:"keypoint_names"`
	Connections   map[string][]pose.Edge `json:"connections"`
}

// DescribeTopology returns the keypoint names and edges of the body and
// hand skeletons.
func DescribeTopology() Topology {
	return Topology{
		KeypointNames: map[string][]string{
			"body": pose.Names(pose.PartBody),
			"hand": pose.Names(pose.PartHandLeft),
		},
		Connections: map[string][]pose.Edge{
			"body": pose.Edges(pose.PartBody),
			"hand": pose.Edges(pose.PartHandLeft),
		},
	}
}
