package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// HandConfig holds the tunable thresholds of the hand rule table.
type HandConfig struct {
	// DoubleClickEpsilon is the largest |index.y - middle.y| read as a double click.
	DoubleClickEpsilon float64 `yaml:"double_click_epsilon" json:"double_click_epsilon"`
	// PalmLandmark is the reference point fingertips are compared against.
	PalmLandmark int `yaml:"palm_landmark" json:"palm_landmark"`
	// PointerLandmark drives the cursor.
	PointerLandmark int `yaml:"pointer_landmark" json:"pointer_landmark"`
	// SwipeMode emits PageSwipe instead of Scroll for the two-finger pose.
	SwipeMode bool `yaml:"swipe_mode" json:"swipe_mode"`
	// ScrollDirection is "up" or "down"; it sets the sense of the two-finger scroll.
	ScrollDirection string `yaml:"scroll_direction" json:"scroll_direction"`
}

// DefaultHandConfig returns the thresholds tuned for a laptop webcam.
func DefaultHandConfig() HandConfig {
	return HandConfig{
		DoubleClickEpsilon: 0.02,
		PalmLandmark:       detector.Wrist,
		PointerLandmark:    detector.IndexTip,
		ScrollDirection:    "up",
	}
}

// EyeConfig holds the tunable thresholds of the eye rule table.
type EyeConfig struct {
	// BlinkThreshold is the eyelid gap (lower.y - upper.y) below which the eye is closed.
	BlinkThreshold float64 `yaml:"blink_threshold" json:"blink_threshold"`
	UpperLid       int     `yaml:"upper_lid" json:"upper_lid"`
	LowerLid       int     `yaml:"lower_lid" json:"lower_lid"`
	// GazeLandmark drives the cursor unless GazeMidpoint is set.
	GazeLandmark int `yaml:"gaze_landmark" json:"gaze_landmark"`
	// GazeMidpoint tracks the midpoint of both lower eyelids instead of the iris.
	GazeMidpoint bool `yaml:"gaze_midpoint" json:"gaze_midpoint"`
	SecondLid    int  `yaml:"second_lid" json:"second_lid"`
}

// DefaultEyeConfig returns the iris-tracking configuration used for pointer control.
func DefaultEyeConfig() EyeConfig {
	return EyeConfig{
		BlinkThreshold: 0.007,
		UpperLid:       detector.LeftEyeUpper,
		LowerLid:       detector.LeftEyeLower,
		GazeLandmark:   detector.RightIrisRight,
		SecondLid:      detector.RightEyeLower,
	}
}

// HandRules returns the hand table. Several predicates overlap (pointer and
// scroll both hold whenever index and middle are raised), so order decides.
func HandRules(cfg HandConfig) []Rule {
	palm := cfg.PalmLandmark
	above := func(s *detector.Snapshot, tips ...int) bool {
		for _, t := range tips {
			if s.Point(t).Y >= s.Point(palm).Y {
				return false
			}
		}
		return true
	}
	below := func(s *detector.Snapshot, tips ...int) bool {
		for _, t := range tips {
			if s.Point(t).Y <= s.Point(palm).Y {
				return false
			}
		}
		return true
	}

	twoFinger := Gesture{Kind: Scroll, Direction: ScrollUp}
	if cfg.ScrollDirection == "down" {
		twoFinger.Direction = ScrollDown
	}
	if cfg.SwipeMode {
		twoFinger = Gesture{Kind: PageSwipe}
	}

	return []Rule{
		{
			Name: "all_fingers_up",
			Emit: Gesture{Kind: BrightnessUp},
			When: func(s *detector.Snapshot) bool {
				return above(s, detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip)
			},
		},
		{
			Name: "all_fingers_down",
			Emit: Gesture{Kind: BrightnessDown},
			When: func(s *detector.Snapshot) bool {
				return below(s, detector.IndexTip, detector.MiddleTip, detector.RingTip, detector.PinkyTip)
			},
		},
		{
			Name: "two_fingers_up",
			Emit: twoFinger,
			When: func(s *detector.Snapshot) bool {
				return above(s, detector.IndexTip, detector.MiddleTip) && below(s, detector.RingTip)
			},
		},
		{
			Name: "three_fingers_up",
			Emit: Gesture{Kind: Screenshot},
			When: func(s *detector.Snapshot) bool {
				return above(s, detector.MiddleTip, detector.RingTip, detector.PinkyTip) && below(s, detector.IndexTip)
			},
		},
		{
			Name: "pointer",
			Emit: Gesture{Kind: PointerMove},
			When: func(s *detector.Snapshot) bool {
				return above(s, detector.IndexTip, detector.MiddleTip)
			},
		},
		{
			Name: "tips_level",
			Emit: Gesture{Kind: DoubleClick},
			When: func(s *detector.Snapshot) bool {
				return math.Abs(s.Point(detector.IndexTip).Y-s.Point(detector.MiddleTip).Y) < cfg.DoubleClickEpsilon
			},
		},
	}
}

// NewHandClassifier builds the hand classifier.
func NewHandClassifier(cfg HandConfig) *Classifier {
	pointer := cfg.PointerLandmark
	return NewClassifier(HandRules(cfg), func(s *detector.Snapshot) detector.Point3D {
		return s.Point(pointer)
	})
}

// EyeRules returns the eye table: a closed eyelid clicks, anything else moves the pointer.
func EyeRules(cfg EyeConfig) []Rule {
	return []Rule{
		{
			Name: "blink",
			Emit: Gesture{Kind: Click},
			When: func(s *detector.Snapshot) bool {
				return EyelidGap(s, cfg) < cfg.BlinkThreshold
			},
		},
		{
			Name: "gaze",
			Emit: Gesture{Kind: PointerMove},
			When: func(s *detector.Snapshot) bool { return true },
		},
	}
}

// EyelidGap returns lower.y - upper.y for the configured eyelid landmarks.
func EyelidGap(s *detector.Snapshot, cfg EyeConfig) float64 {
	return s.Point(cfg.LowerLid).Y - s.Point(cfg.UpperLid).Y
}

// NewEyeClassifier builds the eye classifier.
func NewEyeClassifier(cfg EyeConfig) *Classifier {
	return NewClassifier(EyeRules(cfg), func(s *detector.Snapshot) detector.Point3D {
		if cfg.GazeMidpoint {
			a, b := s.Point(cfg.LowerLid), s.Point(cfg.SecondLid)
			return detector.Point3D{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
		}
		return s.Point(cfg.GazeLandmark)
	})
}
