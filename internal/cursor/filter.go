// Package cursor turns raw landmark positions into smooth pointer positions.
package cursor

import (
	"fmt"
	"math"
)

// DefaultAlpha is the fraction of the remaining distance covered per tick.
const DefaultAlpha = 0.3

// Point is a position in destination coordinates (screen or canvas pixels).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Filter is an exponential low-pass filter over a 2D position.
// Each Update moves the position toward the target by a fixed fraction
// alpha of the remaining distance, so it never overshoots.
type Filter struct {
	alpha    float64
	position Point
	target   Point
}

// NewFilter creates a Filter starting at start. Alpha must be in (0, 1].
func NewFilter(alpha float64, start Point) (*Filter, error) {
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("smoothing alpha %v out of range (0, 1]", alpha)
	}
	return &Filter{
		alpha:    alpha,
		position: start,
		target:   start,
	}, nil
}

// Update sets a new target and advances the position by one tick.
func (f *Filter) Update(target Point) Point {
	f.target = target
	f.position.X += (target.X - f.position.X) * f.alpha
	f.position.Y += (target.Y - f.position.Y) * f.alpha
	return f.position
}

// Position returns the current smoothed position.
func (f *Filter) Position() Point { return f.position }

// Target returns the most recent raw target.
func (f *Filter) Target() Point { return f.target }

// Alpha returns the smoothing coefficient.
func (f *Filter) Alpha() float64 { return f.alpha }

// Reset places the cursor at p with no pending motion. Only used at session start.
func (f *Filter) Reset(p Point) {
	f.position = p
	f.target = p
}

// SettlingTicks returns the number of ticks needed to close a step input to
// within the fraction eps of its original distance: ceil(ln(eps)/ln(1-alpha)).
func SettlingTicks(alpha, eps float64) int {
	if alpha >= 1 {
		return 1
	}
	if alpha <= 0 || eps <= 0 || eps >= 1 {
		return 0
	}
	return int(math.Ceil(math.Log(eps) / math.Log(1-alpha)))
}
