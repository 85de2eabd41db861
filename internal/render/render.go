// Package render draws the annotated view of one tick and encodes it as a still image.
package render

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/game"
)

// Scene is everything drawn for one tick.
type Scene struct {
	// Frame is the camera image used as background. May be nil.
	Frame *gocv.Mat
	// Snapshot landmarks are drawn as markers at their normalized positions.
	Snapshot *detector.Snapshot
	// Markers selects the landmark indices to draw; nil draws all of them.
	Markers []int

	// Space is the coordinate space of Cursor, Targets and Player
	// (screen pixels for control programs, canvas pixels for games).
	Space  image.Point
	Cursor *cursor.Point

	Targets  []game.Target
	Player   *game.Rect
	Score    int
	Game     bool
	GameOver bool
	// Label is shown in the corner, typically the last gesture.
	Label string
}

// Renderer turns scenes into encoded images.
type Renderer interface {
	Render(scene Scene) ([]byte, error)
	Close() error
}

// Stub is a Renderer that encodes nothing. It counts scenes and keeps the last one.
type Stub struct {
	mu     sync.Mutex
	scenes int
	last   Scene
	closed bool
	err    error
}

// NewStub creates a Stub renderer.
func NewStub() *Stub {
	return &Stub{}
}

// SetError makes Render fail with err.
func (s *Stub) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Stub) Render(scene Scene) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.scenes++
	s.last = scene
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Scenes returns how many scenes were rendered.
func (s *Stub) Scenes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenes
}

// Last returns the last rendered scene.
func (s *Stub) Last() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Closed reports whether Close was called.
func (s *Stub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
