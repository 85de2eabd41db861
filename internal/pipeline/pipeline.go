// Package pipeline runs the per-tick loop of a session: acquire an
// observation, smooth and classify it, gate and dispatch or score the
// result, then render and emit a frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/debounce"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/render"
)

// DefaultTickDelay is the pause between two ticks.
const DefaultTickDelay = 10 * time.Millisecond

// ErrStopped is returned by Tick once the pipeline has stopped.
var ErrStopped = errors.New("pipeline stopped")

// Options wires a pipeline. Exactly one of Dispatcher and Engine is set.
type Options struct {
	Source     perception.Source
	Classifier *gesture.Classifier
	Filter     *cursor.Filter
	Mapper     cursor.Mapper
	Throttle   *debounce.Throttle

	// Dispatcher receives gestures in control programs.
	Dispatcher *action.Dispatcher
	// Engine receives the cursor in game programs.
	Engine *game.Engine

	Renderer render.Renderer
	// Markers are the landmark indices drawn on each frame; nil draws all.
	Markers []int

	// Sink receives every encoded frame.
	Sink func(Frame)
	// OnEvent receives a TickEvent after every tick.
	OnEvent func(TickEvent)

	TickDelay time.Duration
	Now       func() time.Time
}

// Pipeline is the tick state machine of one session. Tick must not be
// called concurrently; Stop, State and Stats are safe from any goroutine.
type Pipeline struct {
	opts Options

	state    atomic.Int32
	stopReq  atomic.Bool
	wake     chan struct{}
	wakeOnce sync.Once
	done     chan struct{}

	seq       uint64
	lastStamp time.Time

	mu    sync.Mutex
	stats Stats
}

// New validates opts and returns a running pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case opts.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case opts.Filter == nil:
		return nil, errors.New("pipeline: filter is required")
	case opts.Throttle == nil:
		return nil, errors.New("pipeline: throttle is required")
	case (opts.Dispatcher == nil) == (opts.Engine == nil):
		return nil, errors.New("pipeline: exactly one of dispatcher and engine is required")
	case opts.Renderer == nil:
		opts.Renderer = render.NewStub()
	}
	if opts.TickDelay < 0 {
		return nil, fmt.Errorf("pipeline: negative tick delay %v", opts.TickDelay)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	p := &Pipeline{
		opts: opts,
		wake: make(chan struct{}),
		done: make(chan struct{}),
	}
	p.state.Store(int32(Running))
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Stop asks the pipeline to stop. The flag is observed at the top of the next tick.
func (p *Pipeline) Stop() {
	p.stopReq.Store(true)
	p.wakeOnce.Do(func() { close(p.wake) })
}

// Done is closed once the pipeline reaches Stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Stats returns the running totals.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run ticks until the pipeline stops, pausing TickDelay between ticks.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if _, err := p.Tick(ctx); errors.Is(err, ErrStopped) {
			return nil
		}

		if p.opts.TickDelay <= 0 {
			continue
		}
		timer := time.NewTimer(p.opts.TickDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		case <-p.wake:
			timer.Stop()
		}
	}
}

// Tick performs one iteration. It returns ErrStopped once the pipeline has
// stopped; any other failure inside the tick is logged and swallowed.
func (p *Pipeline) Tick(ctx context.Context) (Frame, error) {
	if p.State() != Running {
		return Frame{}, ErrStopped
	}

	if p.stopReq.Load() {
		p.shutdown(ReasonTerminated)
		return Frame{}, ErrStopped
	}
	if ctx.Err() != nil {
		p.shutdown(ReasonCanceled)
		return Frame{}, ErrStopped
	}

	obs, err := p.opts.Source.Next(ctx)
	if err != nil {
		switch {
		case errors.Is(err, perception.ErrExhausted):
			p.shutdown(ReasonExhausted)
		case ctx.Err() != nil:
			p.shutdown(ReasonCanceled)
		default:
			log.Printf("pipeline: acquisition failed, stopping: %v", err)
			p.shutdown(ReasonAcquire)
		}
		return Frame{}, ErrStopped
	}
	defer obs.Close()

	frame, ev := p.process(ctx, obs)

	if p.opts.Sink != nil && frame.JPEG != nil {
		p.opts.Sink(frame)
	}
	if p.opts.OnEvent != nil {
		p.opts.OnEvent(ev)
	}
	if ev.GameOver {
		p.mu.Lock()
		p.stats.GameOver = true
		p.mu.Unlock()
		p.stopWith(ReasonGameOver)
	}
	return frame, nil
}

// process runs classification, dispatch or scoring, and rendering for one
// observation. Panics are recovered and reported on the event.
func (p *Pipeline) process(ctx context.Context, obs *perception.Observation) (frame Frame, ev TickEvent) {
	now := p.opts.Now()
	p.seq++
	stamp := now
	if stamp.Before(p.lastStamp) {
		stamp = p.lastStamp
	}
	p.lastStamp = stamp
	frame = Frame{Seq: p.seq, Timestamp: stamp}
	ev = TickEvent{Seq: p.seq, Time: stamp, Gesture: string(gesture.Idle)}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipeline: tick %d recovered: %v", p.seq, r)
			ev.Error = fmt.Sprint(r)
		}
		p.mu.Lock()
		p.stats.Ticks++
		if ev.Dispatched {
			p.stats.Actions++
		}
		p.stats.Score = ev.Score
		p.mu.Unlock()
	}()

	snap := obs.Snapshot
	g := p.opts.Classifier.Classify(snap)
	raw, tracked := p.opts.Classifier.Track(snap)

	pos := p.opts.Filter.Position()
	if tracked {
		pos = p.opts.Filter.Update(p.opts.Mapper.Map(raw))
	}
	ev.Tracked = tracked
	ev.Cursor = pos
	ev.Gesture = g.String()

	scene := render.Scene{
		Frame:    obs.Frame,
		Snapshot: snap,
		Markers:  p.opts.Markers,
		Space:    image.Pt(int(p.opts.Mapper.Width), int(p.opts.Mapper.Height)),
		Cursor:   &pos,
	}

	if p.opts.Engine != nil {
		out := p.opts.Engine.Step(pos, tracked)
		if out.GameOver {
			log.Printf("pipeline: game over with score %d", p.opts.Engine.Score())
		}
		ev.Score = p.opts.Engine.Score()
		ev.GameOver = out.GameOver
		scene.Game = true
		scene.Score = ev.Score
		scene.GameOver = out.GameOver
		scene.Targets = p.opts.Engine.Targets()
		if p.opts.Engine.Mode() == game.Dodge {
			player := p.opts.Engine.Player()
			scene.Player = &player
		}
	} else {
		ev.Dispatched = p.dispatch(ctx, g, pos, now)
		if g.Kind != gesture.Idle {
			scene.Label = g.String()
		}
	}

	data, err := p.opts.Renderer.Render(scene)
	if err != nil {
		log.Printf("pipeline: render tick %d: %v", p.seq, err)
		ev.Error = err.Error()
		return frame, ev
	}
	frame.JPEG = data
	return frame, ev
}

// dispatch sends g to the dispatcher. Pointer moves bypass the throttle;
// every other non-idle gesture must pass it.
func (p *Pipeline) dispatch(ctx context.Context, g gesture.Gesture, pos cursor.Point, now time.Time) bool {
	switch {
	case g.Kind == gesture.PointerMove:
		g.Position = pos
	case g.Discrete():
		if !p.opts.Throttle.Allow(string(g.Kind), now) {
			return false
		}
		log.Printf("pipeline: gesture %s accepted", g)
	default:
		return false
	}

	if err := p.opts.Dispatcher.Dispatch(ctx, g); err != nil {
		if g.Discrete() || !errors.Is(err, action.ErrActuationBusy) {
			log.Printf("pipeline: %v", err)
		}
		return false
	}
	return true
}

func (p *Pipeline) stopWith(reason Reason) {
	p.mu.Lock()
	if p.stats.Reason == "" {
		p.stats.Reason = reason
	}
	p.mu.Unlock()
	p.Stop()
}

// shutdown releases the source and renderer and moves to Stopped.
func (p *Pipeline) shutdown(reason Reason) {
	p.mu.Lock()
	if p.stats.Reason == "" {
		p.stats.Reason = reason
	}
	reason = p.stats.Reason
	p.mu.Unlock()

	p.state.Store(int32(Stopping))
	log.Printf("pipeline: %s -> %s (%s)", Running, Stopping, reason)

	if err := p.opts.Source.Close(); err != nil {
		log.Printf("pipeline: close source: %v", err)
	}
	if err := p.opts.Renderer.Close(); err != nil {
		log.Printf("pipeline: close renderer: %v", err)
	}

	p.state.Store(int32(Stopped))
	log.Printf("pipeline: %s -> %s", Stopping, Stopped)
	p.wakeOnce.Do(func() { close(p.wake) })
	close(p.done)
}
