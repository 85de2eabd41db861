// Package session owns one program run at a time: it wires a pipeline for
// the selected program, runs it, and records the outcome.
package session

import (
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/game"
)

// ErrUnknownProgram is returned for names outside the registry.
var ErrUnknownProgram = errors.New("unknown program")

// Program names one of the four runnable programs.
type Program string

const (
	EyeControl  Program = "eye_tracking_control"
	EyeGame     Program = "eye_tracking_game"
	HandControl Program = "hand_tracking_control"
	HandGame    Program = "hand_tracking_game"
)

type definition struct {
	title      string
	kind       detector.Kind
	mode       game.Mode // empty for control programs
	confidence float64
}

var registry = map[Program]definition{
	EyeControl:  {title: "Eye Tracking Control", kind: detector.KindFace, confidence: 0.5},
	EyeGame:     {title: "Eye Tracking Game", kind: detector.KindFace, mode: game.Balloon, confidence: 0.5},
	HandControl: {title: "Hand Tracking Control", kind: detector.KindHand, confidence: 0.8},
	HandGame:    {title: "Hand Tracking Game", kind: detector.KindHand, mode: game.Dodge, confidence: 0.7},
}

// Programs returns every program in menu order.
func Programs() []Program {
	return []Program{EyeControl, EyeGame, HandControl, HandGame}
}

// ParseProgram looks name up in the registry.
func ParseProgram(name string) (Program, error) {
	p := Program(name)
	if _, ok := registry[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProgram, name)
	}
	return p, nil
}

// Title is the human-readable menu label.
func (p Program) Title() string { return registry[p].title }

// Kind is the landmark model the program consumes.
func (p Program) Kind() detector.Kind { return registry[p].kind }

// Game reports whether the program drives the target engine instead of the host.
func (p Program) Game() bool { return registry[p].mode != "" }

// Mode is the engine mode of a game program.
func (p Program) Mode() game.Mode { return registry[p].mode }

// DetectorConfig returns the landmark detector settings for p.
func (p Program) DetectorConfig() detector.Config {
	def := registry[p]
	cfg := detector.DefaultConfig()
	cfg.Mode = def.kind
	cfg.MinConfidence = def.confidence
	cfg.MinTrackingConf = def.confidence
	cfg.RefineLandmarks = def.kind == detector.KindFace
	return cfg
}

// Markers returns the landmark indices drawn on the stream. Nil draws every point.
func (p Program) Markers() []int {
	switch p {
	case EyeControl:
		return []int{
			detector.LeftEyeUpper, detector.LeftEyeLower,
			detector.RightIrisFirst, detector.RightIrisRight,
			detector.RightIrisFirst + 2, detector.RightIrisLast,
		}
	case EyeGame:
		return []int{detector.LeftEyeLower, detector.RightEyeLower}
	default:
		return nil
	}
}
