package cursor

import "github.com/ayusman/mudra/internal/detector"

// Mapper denormalizes landmark coordinates into a destination space of
// Width x Height. Sensitivity amplifies motion about the centre; 1.0 maps the
// frame linearly onto the destination.
type Mapper struct {
	Width       float64
	Height      float64
	Sensitivity float64
}

// Map converts a normalized point into destination coordinates, clamped to the bounds.
func (m Mapper) Map(p detector.Point3D) Point {
	s := m.Sensitivity
	if s <= 0 {
		s = 1
	}
	x := (p.X-0.5)*m.Width*s + m.Width/2
	y := (p.Y-0.5)*m.Height*s + m.Height/2
	return Point{X: clamp(x, 0, m.Width), Y: clamp(y, 0, m.Height)}
}

// Center returns the middle of the destination space.
func (m Mapper) Center() Point {
	return Point{X: m.Width / 2, Y: m.Height / 2}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
