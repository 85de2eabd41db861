// Package detector provides the landmark model and the frame-level detection
// interfaces used to turn camera frames into landmark snapshots.
package detector

import (
	"fmt"
	"math"
	"time"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Face mesh landmark indices used by the eye programs. The mesh has 468
// points plus 10 iris points when landmark refinement is enabled.
const (
	LeftEyeLower   = 145
	LeftEyeUpper   = 159
	RightEyeLower  = 374
	RightIrisFirst = 474
	RightIrisRight = 475
	RightIrisLast  = 477
	NumFaceMesh    = 478
)

// Kind identifies which landmark model produced a snapshot.
type Kind string

const (
	KindHand Kind = "hand"
	KindFace Kind = "face"
)

// Size returns the fixed number of points a snapshot of this kind carries.
func (k Kind) Size() int {
	switch k {
	case KindHand:
		return NumLandmarks
	case KindFace:
		return NumFaceMesh
	default:
		return 0
	}
}

// Point3D represents a 3D point in space with x, y, z coordinates.
// X and Y are normalized to the frame; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is one detected subject (a hand or a face) as reported by a Detector.
type Landmarks struct {
	Kind       Kind      `json:"kind"`
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness,omitempty"` // "Left" or "Right" for hands
	Score      float64   `json:"score"`
}

// distance3D calculates the Euclidean distance between two 3D points.
func distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point3D) float64 {
	return distance3D(a, b)
}

// Snapshot is the immutable set of landmarks observed during one tick.
// A snapshot with no points means nothing was detected in the frame.
type Snapshot struct {
	kind       Kind
	points     []Point3D
	handedness string
	score      float64
	seq        uint64
	capturedAt time.Time
}

// NewSnapshot builds a snapshot from a detected subject. A nil subject yields
// an empty snapshot of the given kind. The points are copied.
func NewSnapshot(kind Kind, seq uint64, capturedAt time.Time, lm *Landmarks) (*Snapshot, error) {
	s := &Snapshot{
		kind:       kind,
		seq:        seq,
		capturedAt: capturedAt,
	}
	if lm == nil || len(lm.Points) == 0 {
		return s, nil
	}
	if lm.Kind != "" && lm.Kind != kind {
		return nil, fmt.Errorf("snapshot kind %s: landmarks are %s", kind, lm.Kind)
	}
	if len(lm.Points) != kind.Size() {
		return nil, fmt.Errorf("snapshot kind %s: want %d points, got %d", kind, kind.Size(), len(lm.Points))
	}

	s.points = make([]Point3D, len(lm.Points))
	copy(s.points, lm.Points)
	s.handedness = lm.Handedness
	s.score = lm.Score
	return s, nil
}

// Kind returns the landmark model of the snapshot.
func (s *Snapshot) Kind() Kind { return s.kind }

// Len returns the number of points, zero when nothing was detected.
func (s *Snapshot) Len() int { return len(s.points) }

// Empty reports whether the snapshot carries no landmarks.
func (s *Snapshot) Empty() bool { return s == nil || len(s.points) == 0 }

// Point returns the landmark at index i. Out of range indices return the zero point.
func (s *Snapshot) Point(i int) Point3D {
	if i < 0 || i >= len(s.points) {
		return Point3D{}
	}
	return s.points[i]
}

// Points returns a copy of all landmarks.
func (s *Snapshot) Points() []Point3D {
	out := make([]Point3D, len(s.points))
	copy(out, s.points)
	return out
}

// Handedness returns "Left" or "Right" for hand snapshots.
func (s *Snapshot) Handedness() string { return s.handedness }

// Score returns the detection confidence.
func (s *Snapshot) Score() float64 { return s.score }

// Seq returns the tick sequence number the snapshot was captured on.
func (s *Snapshot) Seq() uint64 { return s.seq }

// CapturedAt returns the capture time of the underlying frame.
func (s *Snapshot) CapturedAt() time.Time { return s.capturedAt }

// FacePoints expands a sparse index→point map into a full face mesh slice.
func FacePoints(sparse map[int]Point3D) []Point3D {
	points := make([]Point3D, NumFaceMesh)
	for i, p := range sparse {
		if i >= 0 && i < NumFaceMesh {
			points[i] = p
		}
	}
	return points
}
