// Package action translates classified gestures into host actuation calls.
package action

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/gesture"
)

var (
	// ErrActuationFailure wraps every error returned by the actuation port,
	// including calls that exceeded their deadline.
	ErrActuationFailure = errors.New("actuation failure")

	// ErrActuationBusy is returned when a gesture arrives while the previous
	// actuation call is still running. The gesture is dropped.
	ErrActuationBusy = errors.New("actuation busy")
)

// Config tunes how gestures become host calls.
type Config struct {
	// Timeout bounds each actuation call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// PointerDuration is the duration of each pointer move.
	PointerDuration time.Duration `yaml:"pointer_duration" env:"POINTER_DURATION"`
	// ScrollStep is the number of notches per scroll gesture.
	ScrollStep int `yaml:"scroll_step" env:"SCROLL_STEP"`
	// BrightnessStep is the brightness change per gesture, in percent.
	BrightnessStep int `yaml:"brightness_step" env:"BRIGHTNESS_STEP"`
	// ScreenshotDir is where screenshot_<unix>.png files are written.
	ScreenshotDir string `yaml:"screenshot_dir" env:"SCREENSHOT_DIR"`
	// SwipeKeys is the hotkey sent for PageSwipe.
	SwipeKeys []string `yaml:"swipe_keys" env:"SWIPE_KEYS" envSeparator:","`
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         500 * time.Millisecond,
		PointerDuration: 0,
		ScrollStep:      10,
		BrightnessStep:  10,
		ScreenshotDir:   ".",
		SwipeKeys:       []string{"ctrl", "right"},
	}
}

// Dispatcher performs exactly one port call per non-Idle gesture.
type Dispatcher struct {
	port     actuate.Port
	config   Config
	now      func() time.Time
	inFlight atomic.Bool
}

// NewDispatcher creates a Dispatcher over port.
func NewDispatcher(port actuate.Port, config Config) *Dispatcher {
	return &Dispatcher{
		port:   port,
		config: config,
		now:    time.Now,
	}
}

// SetClock replaces the clock used to name screenshots.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Busy reports whether an actuation call is still running.
func (d *Dispatcher) Busy() bool {
	return d.inFlight.Load()
}

// Dispatch performs the host call for g. Idle is a no-op. The call is bounded
// by the configured timeout and by ctx; a call that overruns keeps the
// dispatcher busy until it returns.
func (d *Dispatcher) Dispatch(ctx context.Context, g gesture.Gesture) error {
	call := d.callFor(g)
	if call == nil {
		return nil
	}

	if !d.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", g, ErrActuationBusy)
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("actuation panic: %v", r)
			}
			d.inFlight.Store(false)
			done <- err
		}()
		err = call()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w: %w", g, ErrActuationFailure, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", g, ErrActuationFailure, ctx.Err())
	}
}

func (d *Dispatcher) callFor(g gesture.Gesture) func() error {
	p := d.port
	switch g.Kind {
	case gesture.PointerMove:
		x, y := int(math.Round(g.Position.X)), int(math.Round(g.Position.Y))
		return func() error { return p.MovePointer(x, y, d.config.PointerDuration) }
	case gesture.Click:
		return p.Click
	case gesture.DoubleClick:
		return p.DoubleClick
	case gesture.Scroll:
		delta := d.config.ScrollStep
		if g.Direction == gesture.ScrollDown {
			delta = -delta
		}
		return func() error { return p.Scroll(delta) }
	case gesture.PageSwipe:
		keys := d.config.SwipeKeys
		return func() error { return p.SendHotkey(keys...) }
	case gesture.BrightnessUp:
		return func() error { return p.SetBrightness(d.config.BrightnessStep) }
	case gesture.BrightnessDown:
		return func() error { return p.SetBrightness(-d.config.BrightnessStep) }
	case gesture.Screenshot:
		path := d.ScreenshotPath()
		return func() error { return p.CaptureScreenshot(path) }
	default:
		return nil
	}
}

// ScreenshotPath returns the file the next screenshot is written to.
func (d *Dispatcher) ScreenshotPath() string {
	name := "screenshot_" + strconv.FormatInt(d.now().Unix(), 10) + ".png"
	return filepath.Join(d.config.ScreenshotDir, name)
}
