package actuate

import (
	"sync"
	"time"
)

// Call is one recorded Port invocation.
type Call struct {
	Op    string
	X, Y  int
	Delta int
	Keys  []string
	Path  string
}

// Recorder is a Port that records calls instead of touching the host.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	err    error
	delay  time.Duration
	width  int
	height int
}

// NewRecorder creates a Recorder reporting a width×height screen.
func NewRecorder(width, height int) *Recorder {
	return &Recorder{width: width, height: height}
}

// SetError makes every subsequent call fail with err after being recorded.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SetDelay makes every subsequent call block for d before returning.
func (r *Recorder) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns just the operation names of the recorded calls.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset drops the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	err, delay := r.err, r.delay
	r.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (r *Recorder) MovePointer(x, y int, d time.Duration) error {
	return r.record(Call{Op: "move", X: x, Y: y})
}

func (r *Recorder) Click() error { return r.record(Call{Op: "click"}) }

func (r *Recorder) DoubleClick() error { return r.record(Call{Op: "double_click"}) }

func (r *Recorder) Scroll(delta int) error { return r.record(Call{Op: "scroll", Delta: delta}) }

func (r *Recorder) SendHotkey(keys ...string) error {
	return r.record(Call{Op: "hotkey", Keys: append([]string(nil), keys...)})
}

func (r *Recorder) SetBrightness(delta int) error {
	return r.record(Call{Op: "brightness", Delta: delta})
}

func (r *Recorder) CaptureScreenshot(path string) error {
	return r.record(Call{Op: "screenshot", Path: path})
}

func (r *Recorder) ScreenSize() (int, int) { return r.width, r.height }
