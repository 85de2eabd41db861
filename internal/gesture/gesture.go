// Package gesture classifies landmark snapshots into at most one gesture per frame.
package gesture

import "github.com/ayusman/mudra/internal/cursor"

// Kind names a gesture variant.
type Kind string

const (
	Idle           Kind = "idle"
	PointerMove    Kind = "pointer_move"
	Click          Kind = "click"
	DoubleClick    Kind = "double_click"
	Scroll         Kind = "scroll"
	BrightnessUp   Kind = "brightness_up"
	BrightnessDown Kind = "brightness_down"
	PageSwipe      Kind = "page_swipe"
	Screenshot     Kind = "screenshot"
)

// Direction is the sense of a Scroll gesture.
type Direction int

const (
	ScrollDown Direction = -1
	ScrollUp   Direction = 1
)

// Gesture is the single classification result of one tick. Position is only
// meaningful for PointerMove and Direction only for Scroll.
type Gesture struct {
	Kind      Kind         `json:"kind"`
	Position  cursor.Point `json:"position,omitempty"`
	Direction Direction    `json:"direction,omitempty"`
}

// None is the Idle gesture.
var None = Gesture{Kind: Idle}

// Discrete reports whether the gesture is a one-shot action subject to debouncing.
func (g Gesture) Discrete() bool {
	return g.Kind != Idle && g.Kind != PointerMove
}

// String returns the gesture name.
func (g Gesture) String() string {
	if g.Kind == Scroll {
		if g.Direction == ScrollDown {
			return "scroll_down"
		}
		return "scroll_up"
	}
	return string(g.Kind)
}
