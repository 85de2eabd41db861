package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/render"
	"github.com/ayusman/mudra/internal/store"
)

var (
	// ErrDeviceBusy is returned by Start while another session owns the camera and host.
	ErrDeviceBusy = errors.New("device busy")
	// ErrProgramMismatch is returned by Terminate when the named program is not the active one.
	ErrProgramMismatch = errors.New("program mismatch or no active program")
)

// stopGrace is how long Terminate waits for a cooperative stop before
// canceling the session context.
const stopGrace = 2 * time.Second

// SourceFactory opens the perception source for a program.
type SourceFactory func(ctx context.Context, p Program) (perception.Source, error)

// Event is a tick event tagged with its session.
type Event struct {
	Session string  `json:"session"`
	Program Program `json:"program"`
	pipeline.TickEvent
}

// Options configures a Controller.
type Options struct {
	Config config.Config
	Port   actuate.Port
	// Store records session history and supplies calibration; may be nil.
	Store   *store.Store
	Sources SourceFactory
	// Renderers creates one renderer per session; nil renders with the stub.
	Renderers func() (render.Renderer, error)
	Sink      func(pipeline.Frame)
	OnEvent   func(Event)
	// Rand seeds each game session; nil uses a time-seeded source.
	Rand func() *rand.Rand
	Now  func() time.Time
}

// Controller owns the camera and host on behalf of at most one session.
type Controller struct {
	opts Options

	mu     sync.Mutex
	active *run
}

type run struct {
	session  *Session
	cancel   context.CancelFunc
	finished chan struct{}
	stats    pipeline.Stats
}

func (r *run) done() bool {
	select {
	case <-r.finished:
		return true
	default:
		return false
	}
}

// stop asks the session to stop and waits for it to be recorded.
func (r *run) stop() {
	r.session.Stop()
	select {
	case <-r.finished:
		return
	case <-time.After(stopGrace):
		log.Printf("session: %s did not stop within %v, canceling", r.session.Program, stopGrace)
		r.cancel()
	}
	<-r.finished
}

// NewController creates a Controller.
func NewController(opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{opts: opts}
}

// Start launches program name. While a session is running Start returns
// ErrDeviceBusy, unless replace is set: then the running session is stopped
// and awaited first. ctx bounds opening the source, not the session.
func (c *Controller) Start(ctx context.Context, name string, replace bool) (*Session, error) {
	p, err := ParseProgram(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.active; r != nil && !r.done() {
		if !replace {
			return nil, fmt.Errorf("%w: %s is running", ErrDeviceBusy, r.session.Program)
		}
		log.Printf("session: replacing %s with %s", r.session.Program, p)
		r.stop()
	}
	c.active = nil

	cfg, err := c.configFor(p)
	if err != nil {
		return nil, err
	}

	if c.opts.Sources == nil {
		return nil, errors.New("session: no source factory")
	}
	source, err := c.opts.Sources(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open source for %s: %w", p, err)
	}

	var renderer render.Renderer = render.NewStub()
	if c.opts.Renderers != nil {
		if renderer, err = c.opts.Renderers(); err != nil {
			source.Close()
			return nil, fmt.Errorf("create renderer: %w", err)
		}
	}

	deps := Deps{
		Source:   source,
		Port:     c.opts.Port,
		Renderer: renderer,
		Sink:     c.opts.Sink,
		Now:      c.opts.Now,
	}
	if c.opts.Rand != nil {
		deps.Rand = c.opts.Rand()
	}

	// Events only fire once the session runs, after s is assigned.
	var s *Session
	if c.opts.OnEvent != nil {
		deps.OnEvent = func(ev pipeline.TickEvent) {
			c.opts.OnEvent(Event{Session: s.ID, Program: p, TickEvent: ev})
		}
	}

	s, err = New(p, cfg, deps)
	if err != nil {
		source.Close()
		renderer.Close()
		return nil, err
	}

	if c.opts.Store != nil {
		rec := &store.SessionRecord{ID: s.ID, Program: string(p), StartedAt: s.StartedAt}
		if err := c.opts.Store.Sessions().Create(rec); err != nil {
			log.Printf("session: record start of %s: %v", s.ID, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{session: s, cancel: cancel, finished: make(chan struct{})}
	c.active = r
	go c.run(runCtx, r)

	log.Printf("session: started %s (%s)", p, s.ID)
	return s, nil
}

func (c *Controller) run(ctx context.Context, r *run) {
	defer close(r.finished)
	defer r.cancel()

	s := r.session
	r.stats = s.Run(ctx)
	log.Printf("session: %s (%s) ended: %s after %d ticks, score %d",
		s.Program, s.ID, r.stats.Reason, r.stats.Ticks, r.stats.Score)

	if c.opts.Store == nil {
		return
	}
	ended := c.opts.Now()
	rec := &store.SessionRecord{
		ID:        s.ID,
		Program:   string(s.Program),
		StartedAt: s.StartedAt,
		EndedAt:   &ended,
		Score:     r.stats.Score,
		EndReason: string(r.stats.Reason),
		Ticks:     int(r.stats.Ticks),
		Actions:   int(r.stats.Actions),
	}
	if err := c.opts.Store.Sessions().Finish(rec); err != nil {
		log.Printf("session: record end of %s: %v", s.ID, err)
	}
}

// configFor applies the stored calibration profile of p, if any.
func (c *Controller) configFor(p Program) (config.Config, error) {
	cfg := c.opts.Config
	if c.opts.Store == nil {
		return cfg, cfg.Validate()
	}
	profile, err := c.opts.Store.Calibration().Get(string(p))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return cfg, cfg.Validate()
	case err != nil:
		log.Printf("session: load calibration for %s: %v", p, err)
		return cfg, cfg.Validate()
	}
	return Calibrate(p, cfg, profile)
}

// Terminate stops program name and waits until it has stopped. It returns
// ErrProgramMismatch when name is not the current program.
func (c *Controller) Terminate(name string) error {
	p, err := ParseProgram(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil || r.session.Program != p {
		return fmt.Errorf("%w: %s", ErrProgramMismatch, p)
	}
	r.stop()
	c.active = nil
	log.Printf("session: terminated %s (%s)", p, r.session.ID)
	return nil
}

// Active returns the running session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.done() {
		return nil
	}
	return c.active.session
}

// Current returns the program most recently started and not yet
// terminated, even if its pipeline already stopped on its own.
func (c *Controller) Current() (Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.session.Program, true
}

// Wait blocks until the current session has stopped and been recorded, and
// returns its final stats.
func (c *Controller) Wait(ctx context.Context) (pipeline.Stats, error) {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return pipeline.Stats{}, fmt.Errorf("%w: nothing to wait for", ErrProgramMismatch)
	}
	select {
	case <-r.finished:
		return r.stats, nil
	case <-ctx.Done():
		return pipeline.Stats{}, ctx.Err()
	}
}

// Close stops the current session, if any.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.stop()
		c.active = nil
	}
	return nil
}
