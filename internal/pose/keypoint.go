// Package pose provides the keypoint data model and skeleton topologies
// shared by the refinement and scoring stages.
package pose

import (
	"math"
	"sort"
)

// DefaultVisibility is the confidence a keypoint must exceed to be
// considered visible by graph building and scoring.
const DefaultVisibility = 0.3

// Keypoint is one detected anatomical point.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Z          float64 `json:"z"`
}

// Visible reports whether the keypoint's confidence exceeds threshold.
func (k Keypoint) Visible(threshold float64) bool {
	return k.Confidence > threshold
}

// Distance2D returns the Euclidean distance between a and b in the image plane.
func Distance2D(a, b Keypoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Midpoint returns the point halfway between a and b.
// The confidence of the result is the lower of the two.
func Midpoint(a, b Keypoint) Keypoint {
	return Keypoint{
		X:          (a.X + b.X) / 2,
		Y:          (a.Y + b.Y) / 2,
		Z:          (a.Z + b.Z) / 2,
		Confidence: math.Min(a.Confidence, b.Confidence),
	}
}

// KeypointFrame holds the detector output for a single sampled image.
// Lists may be shorter than their topology; missing indices are simply
// not detected.
type KeypointFrame struct {
	Body       []Keypoint `json:"body_keypoints"`
	HandLeft   []Keypoint `json:"hand_keypoints_left"`
	HandRight  []Keypoint `json:"hand_keypoints_right"`
	Face       []Keypoint `json:"face_keypoints"`
	Timestamp  float64    `json:"timestamp"`
	FrameIndex int        `json:"frame_idx"`
}

// HasBody reports whether the detector found any body keypoints.
func (f KeypointFrame) HasBody() bool {
	return len(f.Body) > 0
}

// Keypoints returns the keypoint list for the given part.
func (f KeypointFrame) Keypoints(part Part) []Keypoint {
	switch part {
	case PartBody:
		return f.Body
	case PartHandLeft:
		return f.HandLeft
	case PartHandRight:
		return f.HandRight
	case PartFace:
		return f.Face
	}
	return nil
}

// At returns the keypoint at index i of the given part and whether it exists.
func (f KeypointFrame) At(part Part, i int) (Keypoint, bool) {
	kps := f.Keypoints(part)
	if i < 0 || i >= len(kps) {
		return Keypoint{}, false
	}
	return kps[i], true
}

// WithEmptyLists returns f with every missing keypoint list replaced by an
// empty one, so undetected parts encode as [] rather than null.
func (f KeypointFrame) WithEmptyLists() KeypointFrame {
	f.Body = orEmpty(f.Body)
	f.HandLeft = orEmpty(f.HandLeft)
	f.HandRight = orEmpty(f.HandRight)
	f.Face = orEmpty(f.Face)
	return f
}

func orEmpty(kps []Keypoint) []Keypoint {
	if kps == nil {
		return []Keypoint{}
	}
	return kps
}

// Sequence is an ordered run of frames, non-decreasing in FrameIndex.
type Sequence []KeypointFrame

// SortByFrameIndex restores frame order in place.
// The sort is stable so frames sharing an index keep their relative order.
func (s Sequence) SortByFrameIndex() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].FrameIndex < s[j].FrameIndex
	})
}

// WithEmptyLists applies KeypointFrame.WithEmptyLists to every frame,
// returning a new sequence.
func (s Sequence) WithEmptyLists() Sequence {
	out := make(Sequence, len(s))
	for i, f := range s {
		out[i] = f.WithEmptyLists()
	}
	return out
}

// Clone returns a shallow copy of the sequence. Keypoint slices are shared
// since frames are never mutated after detection.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}
