package actuate

import (
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"
	"gocv.io/x/gocv"
)

// moveStep is the interval between intermediate pointer positions of a timed move.
const moveStep = 10 * time.Millisecond

// Robot is the host Port backed by robotgo.
type Robot struct{}

// NewRobot creates a robotgo-backed Port.
func NewRobot() *Robot {
	return &Robot{}
}

// MovePointer moves to (x, y). A positive d interpolates from the current
// location in 10ms steps.
func (r *Robot) MovePointer(x, y int, d time.Duration) error {
	steps := int(d / moveStep)
	if steps <= 1 {
		robotgo.Move(x, y)
		return nil
	}

	sx, sy := robotgo.Location()
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		robotgo.Move(sx+int(float64(x-sx)*f), sy+int(float64(y-sy)*f))
		if i < steps {
			time.Sleep(moveStep)
		}
	}
	return nil
}

func (r *Robot) Click() error {
	robotgo.Click("left")
	return nil
}

func (r *Robot) DoubleClick() error {
	robotgo.Click("left", true)
	return nil
}

func (r *Robot) Scroll(delta int) error {
	switch {
	case delta > 0:
		robotgo.ScrollDir(delta, "up")
	case delta < 0:
		robotgo.ScrollDir(-delta, "down")
	}
	return nil
}

func (r *Robot) SendHotkey(keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("hotkey: no keys")
	}
	key := keys[len(keys)-1]
	mods := make([]interface{}, 0, len(keys)-1)
	for _, m := range keys[:len(keys)-1] {
		mods = append(mods, m)
	}
	if err := robotgo.KeyTap(key, mods...); err != nil {
		return fmt.Errorf("hotkey %v: %w", keys, err)
	}
	return nil
}

// SetBrightness is not available through robotgo; wrap the Robot with
// WithBrightness to provide it.
func (r *Robot) SetBrightness(delta int) error {
	return fmt.Errorf("brightness: %w", ErrUnsupported)
}

func (r *Robot) CaptureScreenshot(path string) error {
	img, err := robotgo.CaptureImg()
	if err != nil {
		return fmt.Errorf("capture screen: %w", err)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert screenshot: %w", err)
	}
	defer mat.Close()

	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("write screenshot %s", path)
	}
	return nil
}

func (r *Robot) ScreenSize() (int, int) {
	return robotgo.GetScreenSize()
}
