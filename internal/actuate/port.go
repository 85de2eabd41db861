// Package actuate drives the host: pointer, keyboard, scroll, display
// brightness and screenshots.
package actuate

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by a Port that cannot perform an operation on this host.
var ErrUnsupported = errors.New("actuation not supported")

// Port is the host actuation surface. Calls may block; callers bound them.
type Port interface {
	// MovePointer moves the pointer to (x, y) in screen pixels over d.
	MovePointer(x, y int, d time.Duration) error
	Click() error
	DoubleClick() error
	// Scroll scrolls by delta notches; positive is up.
	Scroll(delta int) error
	// SendHotkey presses keys together. The last key is the main key and
	// the ones before it are held as modifiers.
	SendHotkey(keys ...string) error
	// SetBrightness changes display brightness by delta percent.
	SetBrightness(delta int) error
	// CaptureScreenshot writes the full screen to path as PNG.
	CaptureScreenshot(path string) error
	ScreenSize() (width, height int)
}

// Brightness changes display brightness.
type Brightness interface {
	SetBrightness(delta int) error
}

// WithBrightness returns a Port that routes SetBrightness to b and
// everything else to base.
func WithBrightness(base Port, b Brightness) Port {
	if b == nil {
		return base
	}
	return &composite{Port: base, brightness: b}
}

type composite struct {
	Port
	brightness Brightness
}

func (c *composite) SetBrightness(delta int) error {
	return c.brightness.SetBrightness(delta)
}
