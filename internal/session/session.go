package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/debounce"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/render"
)

// Deps are the collaborators of one session.
type Deps struct {
	Source perception.Source
	// Port is required by control programs and ignored by games.
	Port     actuate.Port
	Renderer render.Renderer
	// Rand seeds target spawning; nil uses a time-seeded source.
	Rand    *rand.Rand
	Sink    func(pipeline.Frame)
	OnEvent func(pipeline.TickEvent)
	Now     func() time.Time
}

// Session is one run of a program: its cursor, debounce and target state
// live in the pipeline it owns.
type Session struct {
	ID        string
	Program   Program
	StartedAt time.Time

	pipeline *pipeline.Pipeline
	filter   *cursor.Filter
	throttle *debounce.Throttle
	engine   *game.Engine
}

// New wires a session for program p. Configuration errors wrap config.ErrInvalid.
func New(p Program, cfg config.Config, deps Deps) (*Session, error) {
	if _, ok := registry[p]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, p)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, errors.New("session: source is required")
	}
	if k, ok := deps.Source.(interface{ Kind() detector.Kind }); ok && k.Kind() != p.Kind() {
		return nil, fmt.Errorf("%w: %s needs %s landmarks, source produces %s", config.ErrInvalid, p, p.Kind(), k.Kind())
	}
	if !p.Game() && deps.Port == nil {
		return nil, errors.New("session: control programs need an actuation port")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Session{
		ID:        uuid.NewString(),
		Program:   p,
		StartedAt: deps.Now(),
	}

	var classifier *gesture.Classifier
	if p.Kind() == detector.KindFace {
		eye := cfg.Eye
		eye.GazeMidpoint = p == EyeGame
		classifier = gesture.NewEyeClassifier(eye)
	} else {
		classifier = gesture.NewHandClassifier(cfg.Hand)
	}

	opts := pipeline.Options{
		Source:     deps.Source,
		Classifier: classifier,
		Renderer:   deps.Renderer,
		Markers:    p.Markers(),
		Sink:       deps.Sink,
		OnEvent:    deps.OnEvent,
		TickDelay:  cfg.Pipeline.TickDelay(),
		Now:        deps.Now,
	}

	if p.Game() {
		gameCfg := cfg.Game.Balloon
		sensitivity := cfg.Cursor.GameSensitivity
		if p.Mode() == game.Dodge {
			gameCfg = cfg.Game.Dodge
			sensitivity = 1
		}
		rng := deps.Rand
		if rng == nil {
			seed := uint64(deps.Now().UnixNano())
			rng = rand.New(rand.NewPCG(seed, seed>>1))
		}
		engine, err := game.NewEngine(gameCfg, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		s.engine = engine
		opts.Engine = engine
		opts.Mapper = cursor.Mapper{Width: gameCfg.Width, Height: gameCfg.Height, Sensitivity: sensitivity}
	} else {
		w, h := deps.Port.ScreenSize()
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("session: screen size %dx%d", w, h)
		}
		opts.Dispatcher = action.NewDispatcher(deps.Port, cfg.Actuation)
		opts.Mapper = cursor.Mapper{Width: float64(w), Height: float64(h), Sensitivity: cfg.Cursor.Sensitivity}
	}

	filter, err := cursor.NewFilter(cfg.Cursor.Alpha, opts.Mapper.Center())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	policy, err := debounce.ParsePolicy(cfg.Debounce.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	throttle, err := debounce.NewThrottle(policy, cfg.Debounce.Interval())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	s.filter = filter
	s.throttle = throttle
	opts.Filter = filter
	opts.Throttle = throttle

	s.pipeline, err = pipeline.New(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Run drives the pipeline until it stops and returns its final stats.
func (s *Session) Run(ctx context.Context) pipeline.Stats {
	s.pipeline.Run(ctx)
	return s.pipeline.Stats()
}

// Stop asks the pipeline to stop at the next tick boundary.
func (s *Session) Stop() { s.pipeline.Stop() }

// Done is closed once the pipeline has stopped.
func (s *Session) Done() <-chan struct{} { return s.pipeline.Done() }

// State returns the pipeline state.
func (s *Session) State() pipeline.State { return s.pipeline.State() }

// Stats returns the running totals.
func (s *Session) Stats() pipeline.Stats { return s.pipeline.Stats() }

// Policy returns the debounce policy in force.
func (s *Session) Policy() debounce.Policy { return s.throttle.Policy() }

// Alpha returns the smoothing factor in force.
func (s *Session) Alpha() float64 { return s.filter.Alpha() }

// Engine returns the target engine of a game session, or nil.
func (s *Session) Engine() *game.Engine { return s.engine }
