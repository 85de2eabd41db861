package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/debounce"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/render"
)

// stepClock advances by step on every call.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

type harness struct {
	p        *Pipeline
	source   *perception.ScriptedSource
	port     *actuate.Recorder
	renderer *render.Stub
	events   []TickEvent
	frames   []Frame
}

func newControl(t *testing.T, classifier *gesture.Classifier, policy debounce.Policy, steps ...perception.Step) *harness {
	t.Helper()

	h := &harness{
		source:   perception.NewScriptedSource(kindOf(classifier), steps...),
		port:     actuate.NewRecorder(1920, 1080),
		renderer: render.NewStub(),
	}
	mapper := cursor.Mapper{Width: 1920, Height: 1080, Sensitivity: 1}
	filter, err := cursor.NewFilter(cursor.DefaultAlpha, mapper.Center())
	if err != nil {
		t.Fatal(err)
	}
	throttle, err := debounce.NewThrottle(policy, 300*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	clock := &stepClock{t: time.Unix(1000, 0), step: 10 * time.Millisecond}

	h.p, err = New(Options{
		Source:     h.source,
		Classifier: classifier,
		Filter:     filter,
		Mapper:     mapper,
		Throttle:   throttle,
		Dispatcher: action.NewDispatcher(h.port, action.DefaultConfig()),
		Renderer:   h.renderer,
		Sink:       func(f Frame) { h.frames = append(h.frames, f) },
		OnEvent:    func(ev TickEvent) { h.events = append(h.events, ev) },
		Now:        clock.now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

// kindOf guesses the snapshot kind from the classifier's table.
func kindOf(c *gesture.Classifier) detector.Kind {
	if c.Rules()[0] == "blink" {
		return detector.KindFace
	}
	return detector.KindHand
}

// drain ticks until the pipeline stops and returns the number of ticks that produced frames.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for i := 0; i < 10000; i++ {
		if _, err := h.p.Tick(context.Background()); errors.Is(err, ErrStopped) {
			return n
		}
		n++
	}
	t.Fatal("pipeline never stopped")
	return n
}

func TestPipeline_BlinkClicksOnce(t *testing.T) {
	var steps []perception.Step
	for _, gap := range []float64{0.01, 0.01, 0.005, 0.005, 0.01} {
		steps = append(steps, perception.Seen(detector.FaceLandmarks(gap, 0.5, 0.5)))
	}
	h := newControl(t, gesture.NewEyeClassifier(gesture.DefaultEyeConfig()), debounce.PolicyShared, steps...)

	if n := h.drain(t); n != 5 {
		t.Fatalf("ticks = %d, want 5", n)
	}

	want := []string{"move", "move", "click", "move"}
	if diff := cmp.Diff(want, h.port.Ops()); diff != "" {
		t.Errorf("actuation calls mismatch (-want +got):\n%s", diff)
	}

	gestures := make([]string, len(h.events))
	for i, ev := range h.events {
		gestures[i] = ev.Gesture
	}
	wantGestures := []string{"pointer_move", "pointer_move", "click", "click", "pointer_move"}
	if diff := cmp.Diff(wantGestures, gestures); diff != "" {
		t.Errorf("classified gestures mismatch (-want +got):\n%s", diff)
	}
	if h.events[3].Dispatched {
		t.Error("second blink inside the debounce window must not dispatch")
	}
}

func TestPipeline_ExhaustionStopsCleanly(t *testing.T) {
	steps := perception.Repeat(perception.Seen(detector.PointingLandmarks()), 9)
	h := newControl(t, gesture.NewHandClassifier(gesture.DefaultHandConfig()), debounce.PolicyShared, steps...)

	if n := h.drain(t); n != 9 {
		t.Fatalf("ticks = %d, want 9", n)
	}
	if h.p.State() != Stopped {
		t.Errorf("State() = %v, want stopped", h.p.State())
	}
	select {
	case <-h.p.Done():
	default:
		t.Error("Done() should be closed")
	}
	if !h.source.Closed() || !h.renderer.Closed() {
		t.Error("stopping must release the source and renderer")
	}

	calls := len(h.port.Calls())
	if calls != 9 {
		t.Errorf("calls = %d, want 9 pointer moves", calls)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.p.Tick(context.Background()); !errors.Is(err, ErrStopped) {
			t.Errorf("Tick() after stop error = %v, want ErrStopped", err)
		}
	}
	if len(h.port.Calls()) != calls {
		t.Error("no actuation may happen after the pipeline stopped")
	}
	if got := h.p.Stats().Reason; got != ReasonExhausted {
		t.Errorf("Reason = %q, want exhausted", got)
	}
}

func TestPipeline_IdleDispatchesNothing(t *testing.T) {
	steps := append(
		perception.Repeat(perception.Seen(detector.HandPose(0.9, 0.3, 0.9, 0.3)), 5),
		perception.Repeat(perception.Nothing(), 5)...,
	)
	h := newControl(t, gesture.NewHandClassifier(gesture.DefaultHandConfig()), debounce.PolicyShared, steps...)

	h.drain(t)

	if calls := h.port.Calls(); len(calls) != 0 {
		t.Errorf("expected no actuation for idle ticks, got %v", calls)
	}
	for _, ev := range h.events {
		if ev.Gesture != "idle" || ev.Dispatched {
			t.Errorf("event %d = %+v, want idle", ev.Seq, ev)
		}
	}
}

func TestPipeline_DebounceExclusivity(t *testing.T) {
	poses := []detector.Landmarks{
		detector.OpenPalmLandmarks(),
		detector.ThreeFingersLandmarks(),
		detector.HangingHandLandmarks(),
	}
	var steps []perception.Step
	for i := 0; i < 100; i++ {
		steps = append(steps, perception.Seen(poses[i%len(poses)]))
	}

	tests := []struct {
		policy debounce.Policy
		want   int
	}{
		// 100 ticks at 10ms span 990ms: accepted at 0, 300, 600 and 900ms.
		{debounce.PolicyShared, 4},
		// Each kind keeps its own window.
		{debounce.PolicyPerGesture, 12},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			h := newControl(t, gesture.NewHandClassifier(gesture.DefaultHandConfig()), tt.policy, steps...)
			h.drain(t)

			if got := len(h.port.Calls()); got != tt.want {
				t.Errorf("dispatches = %d, want %d (%v)", got, tt.want, h.port.Ops())
			}
			if got := h.p.Stats().Actions; got != uint64(tt.want) {
				t.Errorf("Stats().Actions = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPipeline_ActuationFailureKeepsRunning(t *testing.T) {
	steps := perception.Repeat(perception.Seen(detector.OpenPalmLandmarks()), 3)
	h := newControl(t, gesture.NewHandClassifier(gesture.DefaultHandConfig()), debounce.PolicyShared, steps...)
	h.port.SetError(actuate.ErrUnsupported)

	if n := h.drain(t); n != 3 {
		t.Errorf("ticks = %d, want 3", n)
	}
	if h.events[0].Dispatched {
		t.Error("a failed actuation must not count as dispatched")
	}
}

type panicRenderer struct{ render.Stub }

func (p *panicRenderer) Render(render.Scene) ([]byte, error) { panic("bad frame") }

func TestPipeline_RecoversPanics(t *testing.T) {
	h := newControl(t, gesture.NewHandClassifier(gesture.DefaultHandConfig()), debounce.PolicyShared,
		perception.Repeat(perception.Seen(detector.PointingLandmarks()), 2)...)
	h.p.opts.Renderer = &panicRenderer{}

	if n := h.drain(t); n != 2 {
		t.Fatalf("ticks = %d, want 2", n)
	}
	if h.events[0].Error == "" {
		t.Error("recovered panic should be reported on the event")
	}
	if len(h.frames) != 0 {
		t.Error("no frame is emitted for a failed render")
	}
}

func TestPipeline_FramesAreOrdered(t *testing.T) {
	h := newControl(t, gesture.NewHandClassifier(gesture.DefaultHandConfig()), debounce.PolicyShared,
		perception.Repeat(perception.Nothing(), 20)...)
	h.drain(t)

	if len(h.frames) != 20 {
		t.Fatalf("frames = %d, want 20", len(h.frames))
	}
	for i := 1; i < len(h.frames); i++ {
		prev, cur := h.frames[i-1], h.frames[i]
		if cur.Seq <= prev.Seq {
			t.Errorf("frame %d: seq %d not after %d", i, cur.Seq, prev.Seq)
		}
		if cur.Timestamp.Before(prev.Timestamp) {
			t.Errorf("frame %d: timestamp went backwards", i)
		}
	}
	if h.renderer.Scenes() != 20 {
		t.Errorf("Scenes() = %d, want 20", h.renderer.Scenes())
	}
}

// endless never runs dry.
type endless struct{ closed bool }

func (e *endless) Next(ctx context.Context) (*perception.Observation, error) {
	snap, _ := detector.NewSnapshot(detector.KindHand, 0, time.Now(), nil)
	return &perception.Observation{Snapshot: snap}, nil
}

func (e *endless) Close() error {
	e.closed = true
	return nil
}

func TestPipeline_RunAndStop(t *testing.T) {
	src := &endless{}
	filter, _ := cursor.NewFilter(0.3, cursor.Point{})
	throttle, _ := debounce.NewThrottle(debounce.PolicyShared, time.Second)
	p, err := New(Options{
		Source:     src,
		Classifier: gesture.NewHandClassifier(gesture.DefaultHandConfig()),
		Filter:     filter,
		Mapper:     cursor.Mapper{Width: 800, Height: 600},
		Throttle:   throttle,
		Dispatcher: action.NewDispatcher(actuate.NewRecorder(800, 600), action.DefaultConfig()),
		TickDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	p.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}

	if p.State() != Stopped || !src.closed {
		t.Error("pipeline should be stopped with its source closed")
	}
	stats := p.Stats()
	if stats.Reason != ReasonTerminated || stats.Ticks == 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestPipeline_ContextCancel(t *testing.T) {
	filter, _ := cursor.NewFilter(0.3, cursor.Point{})
	throttle, _ := debounce.NewThrottle(debounce.PolicyShared, time.Second)
	p, _ := New(Options{
		Source:     &endless{},
		Classifier: gesture.NewHandClassifier(gesture.DefaultHandConfig()),
		Filter:     filter,
		Throttle:   throttle,
		Dispatcher: action.NewDispatcher(actuate.NewRecorder(800, 600), action.DefaultConfig()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if got := p.Stats().Reason; got != ReasonCanceled {
		t.Errorf("Reason = %q, want canceled", got)
	}
}

func TestPipeline_GameOver(t *testing.T) {
	cfg := game.DodgeConfig()
	cfg.SpawnRate = 0
	engine, err := game.NewEngine(cfg, rand.New(rand.NewPCG(3, 4)))
	if err != nil {
		t.Fatal(err)
	}
	engine.Place(game.Target{Rect: game.Rect{X: 360, Y: 380, W: 100, H: 100}, VY: 8})

	mapper := cursor.Mapper{Width: 800, Height: 600, Sensitivity: 1}
	filter, _ := cursor.NewFilter(0.3, mapper.Center())
	throttle, _ := debounce.NewThrottle(debounce.PolicyShared, time.Second)
	src := perception.NewScriptedSource(detector.KindHand, perception.Repeat(perception.Seen(detector.PointingLandmarks()), 10)...)
	renderer := render.NewStub()

	var events []TickEvent
	p, err := New(Options{
		Source:     src,
		Classifier: gesture.NewHandClassifier(gesture.DefaultHandConfig()),
		Filter:     filter,
		Mapper:     mapper,
		Throttle:   throttle,
		Engine:     engine,
		Renderer:   renderer,
		OnEvent:    func(ev TickEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(events) != 1 || !events[0].GameOver {
		t.Fatalf("events = %+v, want a single game-over tick", events)
	}
	if !renderer.Last().GameOver || renderer.Last().Player == nil {
		t.Error("the last frame should show the game-over banner and the player")
	}
	stats := p.Stats()
	if stats.Reason != ReasonGameOver || !stats.GameOver {
		t.Errorf("Stats() = %+v", stats)
	}
	if src.Remaining() != 9 {
		t.Errorf("Remaining() = %d, want 9", src.Remaining())
	}
}

func TestNew_Validation(t *testing.T) {
	filter, _ := cursor.NewFilter(0.3, cursor.Point{})
	throttle, _ := debounce.NewThrottle(debounce.PolicyShared, time.Second)
	base := Options{
		Source:     &endless{},
		Classifier: gesture.NewHandClassifier(gesture.DefaultHandConfig()),
		Filter:     filter,
		Throttle:   throttle,
	}

	if _, err := New(base); err == nil {
		t.Error("expected error without dispatcher or engine")
	}

	both := base
	both.Dispatcher = action.NewDispatcher(actuate.NewRecorder(1, 1), action.DefaultConfig())
	both.Engine, _ = game.NewEngine(game.BalloonConfig(), rand.New(rand.NewPCG(1, 1)))
	if _, err := New(both); err == nil {
		t.Error("expected error with both dispatcher and engine")
	}

	noSource := both
	noSource.Engine = nil
	noSource.Source = nil
	if _, err := New(noSource); err == nil {
		t.Error("expected error without source")
	}
}

func TestState_String(t *testing.T) {
	got := []string{Running.String(), Stopping.String(), Stopped.String()}
	if diff := cmp.Diff([]string{"running", "stopping", "stopped"}, got); diff != "" {
		t.Errorf("state names mismatch (-want +got):\n%s", diff)
	}
}
