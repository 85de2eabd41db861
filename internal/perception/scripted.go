package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Step is one scripted tick: landmarks seen, nothing seen, or a failure.
type Step struct {
	Landmarks *detector.Landmarks
	Err       error
}

// Seen returns a step where lm is detected.
func Seen(lm detector.Landmarks) Step {
	return Step{Landmarks: &lm}
}

// Nothing returns a step with an empty frame.
func Nothing() Step {
	return Step{}
}

// Fail returns a step whose acquisition fails with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Repeat returns n copies of step.
func Repeat(step Step, n int) []Step {
	out := make([]Step, n)
	for i := range out {
		out[i] = step
	}
	return out
}

// ScriptedSource replays a fixed sequence of steps, then reports ErrExhausted.
// Snapshot timestamps advance by Interval per step from Start.
type ScriptedSource struct {
	kind  detector.Kind
	steps []Step

	// Start is the capture time of the first step.
	Start time.Time
	// Interval is the capture time between steps.
	Interval time.Duration

	mu     sync.Mutex
	next   int
	closed bool
}

// NewScriptedSource creates a source replaying steps as snapshots of kind.
func NewScriptedSource(kind detector.Kind, steps ...Step) *ScriptedSource {
	return &ScriptedSource{
		kind:     kind,
		steps:    steps,
		Start:    time.Unix(0, 0),
		Interval: 10 * time.Millisecond,
	}
}

// Kind returns the landmark model of the replayed snapshots.
func (s *ScriptedSource) Kind() detector.Kind { return s.kind }

// Next returns the next scripted observation.
func (s *ScriptedSource) Next(ctx context.Context) (*Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.steps) {
		return nil, ErrExhausted
	}

	step := s.steps[s.next]
	s.next++
	if step.Err != nil {
		return nil, step.Err
	}

	seq := uint64(s.next)
	at := s.Start.Add(time.Duration(s.next-1) * s.Interval)
	snap, err := detector.NewSnapshot(s.kind, seq, at, step.Landmarks)
	if err != nil {
		return nil, fmt.Errorf("scripted step %d: %w", seq, err)
	}
	return &Observation{Snapshot: snap}, nil
}

// Remaining returns how many steps have not been replayed.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}

// Closed reports whether Close was called.
func (s *ScriptedSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// script is the JSON form of a recorded session:
//
//	{"kind": "hand", "interval_ms": 10, "frames": [{"points": [...]}, null, ...]}
//
// A null frame is a tick where nothing was detected.
type script struct {
	Kind       detector.Kind         `json:"kind"`
	IntervalMs int                   `json:"interval_ms"`
	Frames     []*detector.Landmarks `json:"frames"`
}

// LoadScript reads a recorded session from r.
func LoadScript(r io.Reader) (*ScriptedSource, error) {
	var sc script
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if sc.Kind.Size() == 0 {
		return nil, fmt.Errorf("script: unknown kind %q", sc.Kind)
	}

	steps := make([]Step, len(sc.Frames))
	for i, lm := range sc.Frames {
		if lm == nil {
			continue
		}
		if lm.Kind == "" {
			lm.Kind = sc.Kind
		}
		if len(lm.Points) != sc.Kind.Size() {
			return nil, fmt.Errorf("script frame %d: want %d points, got %d", i, sc.Kind.Size(), len(lm.Points))
		}
		steps[i] = Step{Landmarks: lm}
	}

	src := NewScriptedSource(sc.Kind, steps...)
	if sc.IntervalMs > 0 {
		src.Interval = time.Duration(sc.IntervalMs) * time.Millisecond
	}
	return src, nil
}

// WriteScript records landmarks in the format read by LoadScript.
func WriteScript(w io.Writer, kind detector.Kind, interval time.Duration, frames []*detector.Landmarks) error {
	enc := json.NewEncoder(w)
	return enc.Encode(script{Kind: kind, IntervalMs: int(interval / time.Millisecond), Frames: frames})
}
