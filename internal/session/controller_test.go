package session

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/store"
)

// endless returns a factory whose sources idle for far longer than any test.
func endless() (SourceFactory, func() []*perception.ScriptedSource) {
	var mu sync.Mutex
	var opened []*perception.ScriptedSource
	factory := func(ctx context.Context, p Program) (perception.Source, error) {
		src := perception.NewScriptedSource(p.Kind(), perception.Repeat(perception.Nothing(), 100_000)...)
		mu.Lock()
		opened = append(opened, src)
		mu.Unlock()
		return src, nil
	}
	return factory, func() []*perception.ScriptedSource {
		mu.Lock()
		defer mu.Unlock()
		return append([]*perception.ScriptedSource(nil), opened...)
	}
}

func newTestController(t *testing.T, sources SourceFactory, st *store.Store) *Controller {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.TickDelayMS = 1
	c := NewController(Options{
		Config:  cfg,
		Port:    actuate.NewRecorder(1280, 720),
		Store:   st,
		Sources: sources,
		Rand:    func() *rand.Rand { return rand.New(rand.NewPCG(7, 7)) },
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestController_StartAndTerminate(t *testing.T) {
	sources, opened := endless()
	c := newTestController(t, sources, nil)

	s, err := c.Start(context.Background(), "hand_tracking_control", false)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Program != HandControl {
		t.Errorf("Program = %q, want hand_tracking_control", s.Program)
	}
	if c.Active() != s {
		t.Error("Active() should return the started session")
	}
	if p, ok := c.Current(); !ok || p != HandControl {
		t.Errorf("Current() = %q, %v", p, ok)
	}

	if err := c.Terminate("hand_tracking_control"); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if s.State() != pipeline.Stopped {
		t.Errorf("State() = %v, want Stopped after Terminate", s.State())
	}
	if c.Active() != nil {
		t.Error("Active() should be nil after Terminate")
	}
	if _, ok := c.Current(); ok {
		t.Error("Current() should be empty after Terminate")
	}
	if src := opened(); len(src) != 1 || !src[0].Closed() {
		t.Error("source should be closed after Terminate")
	}
}

func TestController_Busy(t *testing.T) {
	sources, _ := endless()
	c := newTestController(t, sources, nil)

	if _, err := c.Start(context.Background(), "eye_tracking_game", false); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, err := c.Start(context.Background(), "hand_tracking_game", false)
	if !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("second Start() error = %v, want ErrDeviceBusy", err)
	}
	if p, _ := c.Current(); p != EyeGame {
		t.Errorf("Current() = %q, want the first program", p)
	}
}

func TestController_Replace(t *testing.T) {
	sources, opened := endless()
	c := newTestController(t, sources, nil)

	first, err := c.Start(context.Background(), "eye_tracking_game", false)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	second, err := c.Start(context.Background(), "hand_tracking_game", true)
	if err != nil {
		t.Fatalf("replacing Start() error = %v", err)
	}

	if first.State() != pipeline.Stopped {
		t.Errorf("replaced session State() = %v, want Stopped", first.State())
	}
	if first.Stats().Reason != pipeline.ReasonTerminated {
		t.Errorf("replaced session Reason = %q, want terminated", first.Stats().Reason)
	}
	if c.Active() != second {
		t.Error("Active() should be the replacement")
	}
	if src := opened(); len(src) != 2 || !src[0].Closed() || src[1].Closed() {
		t.Error("only the replaced session's source should be closed")
	}
}

func TestController_TerminateErrors(t *testing.T) {
	sources, _ := endless()
	c := newTestController(t, sources, nil)

	if err := c.Terminate("eye_tracking_control"); !errors.Is(err, ErrProgramMismatch) {
		t.Errorf("Terminate() with nothing running error = %v, want ErrProgramMismatch", err)
	}
	if err := c.Terminate("bogus"); !errors.Is(err, ErrUnknownProgram) {
		t.Errorf("Terminate(bogus) error = %v, want ErrUnknownProgram", err)
	}

	if _, err := c.Start(context.Background(), "eye_tracking_control", false); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Terminate("hand_tracking_control"); !errors.Is(err, ErrProgramMismatch) {
		t.Errorf("Terminate(other) error = %v, want ErrProgramMismatch", err)
	}
	if c.Active() == nil {
		t.Error("mismatched Terminate should leave the session running")
	}
}

func TestController_StartErrors(t *testing.T) {
	t.Run("unknown program", func(t *testing.T) {
		sources, _ := endless()
		c := newTestController(t, sources, nil)
		if _, err := c.Start(context.Background(), "snake", false); !errors.Is(err, ErrUnknownProgram) {
			t.Errorf("Start() error = %v, want ErrUnknownProgram", err)
		}
	})

	t.Run("source failure", func(t *testing.T) {
		boom := errors.New("camera unplugged")
		c := newTestController(t, func(ctx context.Context, p Program) (perception.Source, error) {
			return nil, boom
		}, nil)
		if _, err := c.Start(context.Background(), "eye_tracking_control", false); !errors.Is(err, boom) {
			t.Errorf("Start() error = %v, want wrapped source error", err)
		}
		if c.Active() != nil {
			t.Error("failed Start should leave no active session")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		sources, opened := endless()
		cfg := config.Default()
		cfg.Cursor.Alpha = 0
		c := NewController(Options{Config: cfg, Sources: sources})
		if _, err := c.Start(context.Background(), "hand_tracking_game", false); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("Start() error = %v, want ErrInvalid", err)
		}
		if len(opened()) != 0 {
			t.Error("invalid config should fail before opening the source")
		}
	})
}

func TestController_StartAfterNaturalEnd(t *testing.T) {
	short := func(ctx context.Context, p Program) (perception.Source, error) {
		return perception.NewScriptedSource(p.Kind(), perception.Nothing(), perception.Nothing()), nil
	}
	c := newTestController(t, short, nil)

	if _, err := c.Start(context.Background(), "hand_tracking_game", false); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if stats.Reason != pipeline.ReasonExhausted || stats.Ticks != 2 {
		t.Errorf("stats = %+v, want 2 ticks and exhausted", stats)
	}

	if c.Active() != nil {
		t.Error("Active() should be nil once the session ended")
	}
	if p, ok := c.Current(); !ok || p != HandGame {
		t.Error("Current() should still name the ended program until terminated")
	}
	if _, err := c.Start(context.Background(), "eye_tracking_game", false); err != nil {
		t.Errorf("Start() after natural end error = %v", err)
	}
}

func TestController_RecordsSessions(t *testing.T) {
	st := newTestStore(t)
	short := func(ctx context.Context, p Program) (perception.Source, error) {
		return perception.NewScriptedSource(p.Kind(), perception.Repeat(perception.Seen(detector.OpenPalmLandmarks()), 3)...), nil
	}
	c := newTestController(t, short, st)

	s, err := c.Start(context.Background(), "hand_tracking_control", false)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	rec, err := st.Sessions().Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Active() {
		t.Error("record should be finished")
	}
	if rec.Program != "hand_tracking_control" || rec.EndReason != "exhausted" || rec.Ticks != 3 {
		t.Errorf("record = %+v", rec)
	}
	// An open palm is BrightnessUp; the shared gate lets one through.
	if rec.Actions != 1 {
		t.Errorf("Actions = %d, want 1", rec.Actions)
	}
}

func TestController_AppliesCalibration(t *testing.T) {
	st := newTestStore(t)
	gap := 0.005
	// Default blink threshold 0.007 would click; the profile lowers it below the gap.
	if err := st.Calibration().Put("eye_tracking_control", json.RawMessage(`{"blink_threshold":0.004}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	short := func(ctx context.Context, p Program) (perception.Source, error) {
		return perception.NewScriptedSource(p.Kind(), perception.Seen(detector.FaceLandmarks(gap, 0.5, 0.5))), nil
	}

	var mu sync.Mutex
	var events []Event
	cfg := config.Default()
	cfg.Pipeline.TickDelayMS = 0
	c := NewController(Options{
		Config:  cfg,
		Port:    actuate.NewRecorder(1280, 720),
		Store:   st,
		Sources: short,
		OnEvent: func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	defer c.Close()

	s, err := c.Start(context.Background(), "eye_tracking_control", false)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Session != s.ID || ev.Program != EyeControl {
		t.Errorf("event tagged %q/%q, want %q/%q", ev.Session, ev.Program, s.ID, EyeControl)
	}
	if ev.Gesture != "pointer_move" {
		t.Errorf("Gesture = %q, want pointer_move under the calibrated threshold", ev.Gesture)
	}
}

func TestController_InvalidCalibration(t *testing.T) {
	st := newTestStore(t)
	if err := st.Calibration().Put("hand_tracking_game", json.RawMessage(`{"pointer_landmark":99}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	sources, _ := endless()
	c := newTestController(t, sources, st)

	if _, err := c.Start(context.Background(), "hand_tracking_game", false); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Start() error = %v, want ErrInvalid", err)
	}
}

func TestController_WaitWithoutSession(t *testing.T) {
	c := NewController(Options{Config: config.Default()})
	if _, err := c.Wait(context.Background()); !errors.Is(err, ErrProgramMismatch) {
		t.Errorf("Wait() error = %v, want ErrProgramMismatch", err)
	}
}

func TestEvent_JSON(t *testing.T) {
	ev := Event{Session: "abc", Program: HandGame, TickEvent: pipeline.TickEvent{Seq: 3, Gesture: "idle", Score: 2}}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["session"] != "abc" || got["program"] != "hand_tracking_game" || got["seq"] != float64(3) || got["score"] != float64(2) {
		t.Errorf("flattened event = %v", got)
	}
}
