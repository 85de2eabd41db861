// Package game implements the target engine behind the game programs:
// moving targets on a fixed canvas, collision tests and scoring.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ayusman/mudra/internal/cursor"
)

// ErrInvalidConfig is returned by NewEngine for unusable settings.
var ErrInvalidConfig = errors.New("invalid game config")

// Mode selects the scoring policy.
type Mode string

const (
	// Balloon targets rise from the bottom; touching one with the cursor
	// pops it for a point. Missed targets respawn silently.
	Balloon Mode = "balloon"
	// Dodge targets fall from the top; a player sprite steered by the
	// cursor must avoid them. Each target that leaves the canvas scores a
	// point, a collision ends the game.
	Dodge Mode = "dodge"
)

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside r. The right and bottom edges are exclusive.
func (r Rect) Contains(p cursor.Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Target is one moving rectangle. VY is its vertical velocity per tick.
type Target struct {
	Rect
	VY float64
}

// Config holds the canvas geometry and the tuning of one mode.
type Config struct {
	Mode   Mode    `yaml:"mode" json:"mode"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`

	TargetWidth  float64 `yaml:"target_width" json:"target_width"`
	TargetHeight float64 `yaml:"target_height" json:"target_height"`
	// TargetSpeed is the vertical distance a target covers per tick.
	TargetSpeed float64 `yaml:"target_speed" json:"target_speed" env:"TARGET_SPEED"`
	// SpawnMinX and SpawnMaxX bound the spawn column, inclusive.
	SpawnMinX int `yaml:"spawn_min_x" json:"spawn_min_x"`
	SpawnMaxX int `yaml:"spawn_max_x" json:"spawn_max_x"`

	// PoolSize is the number of live balloons.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// RespawnY is the height above which a missed balloon goes back to the bottom.
	RespawnY float64 `yaml:"respawn_y" json:"respawn_y"`

	// SpawnRate is the per-tick probability of a new falling target.
	SpawnRate    float64 `yaml:"spawn_rate" json:"spawn_rate" env:"SPAWN_RATE"`
	PlayerWidth  float64 `yaml:"player_width" json:"player_width"`
	PlayerHeight float64 `yaml:"player_height" json:"player_height"`
	PlayerY      float64 `yaml:"player_y" json:"player_y"`
	PlayerStartX float64 `yaml:"player_start_x" json:"player_start_x"`
	PlayerSpeed  float64 `yaml:"player_speed" json:"player_speed"`
}

// BalloonConfig returns the balloon game on an 800x600 canvas.
func BalloonConfig() Config {
	return Config{
		Mode:         Balloon,
		Width:        800,
		Height:       600,
		TargetWidth:  150,
		TargetHeight: 170,
		TargetSpeed:  2,
		SpawnMinX:    100,
		SpawnMaxX:    700,
		PoolSize:     5,
		RespawnY:     -70,
	}
}

// DodgeConfig returns the dodge game on an 800x600 canvas.
func DodgeConfig() Config {
	return Config{
		Mode:         Dodge,
		Width:        800,
		Height:       600,
		TargetWidth:  100,
		TargetHeight: 100,
		TargetSpeed:  8,
		SpawnMinX:    50,
		SpawnMaxX:    750,
		SpawnRate:    0.05,
		PlayerWidth:  120,
		PlayerHeight: 120,
		PlayerY:      480,
		PlayerStartX: 340,
		PlayerSpeed:  20,
	}
}

// Validate checks the config for the selected mode.
func (c Config) Validate() error {
	switch {
	case c.Mode != Balloon && c.Mode != Dodge:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: canvas must be positive", ErrInvalidConfig)
	case c.TargetWidth <= 0 || c.TargetHeight <= 0:
		return fmt.Errorf("%w: target size must be positive", ErrInvalidConfig)
	case c.TargetSpeed <= 0:
		return fmt.Errorf("%w: target_speed must be positive", ErrInvalidConfig)
	case c.SpawnMaxX < c.SpawnMinX:
		return fmt.Errorf("%w: spawn_max_x below spawn_min_x", ErrInvalidConfig)
	}
	if c.Mode == Balloon && c.PoolSize <= 0 {
		return fmt.Errorf("%w: pool_size must be positive", ErrInvalidConfig)
	}
	if c.Mode == Dodge {
		if c.SpawnRate < 0 || c.SpawnRate > 1 {
			return fmt.Errorf("%w: spawn_rate must be within [0, 1]", ErrInvalidConfig)
		}
		if c.PlayerWidth <= 0 || c.PlayerHeight <= 0 || c.PlayerWidth > c.Width {
			return fmt.Errorf("%w: player size out of range", ErrInvalidConfig)
		}
	}
	return nil
}

// Outcome summarizes one Step.
type Outcome struct {
	Hits     int
	Dodged   int
	GameOver bool
}

// Engine owns the live target set and the score of one game session.
type Engine struct {
	config  Config
	rng     *rand.Rand
	targets []Target
	player  Rect
	score   int
	over    bool
}

// NewEngine creates an engine. All randomness is drawn from rng so a seeded
// source replays the same game.
func NewEngine(config Config, rng *rand.Rand) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{config: config, rng: rng}

	switch config.Mode {
	case Balloon:
		e.targets = make([]Target, 0, config.PoolSize)
		for i := 0; i < config.PoolSize; i++ {
			e.targets = append(e.targets, e.spawn(config.Height, -config.TargetSpeed))
		}
	case Dodge:
		e.player = Rect{X: config.PlayerStartX, Y: config.PlayerY, W: config.PlayerWidth, H: config.PlayerHeight}
	}
	return e, nil
}

// Step runs one tick against the cursor. tracked is false when nothing was
// detected; the cursor is then ignored. A finished game does not change.
func (e *Engine) Step(p cursor.Point, tracked bool) Outcome {
	if e.over {
		return Outcome{GameOver: true}
	}

	var out Outcome
	switch e.config.Mode {
	case Balloon:
		e.Advance()
		if tracked {
			out.Hits = e.Hit(p)
		}
	case Dodge:
		if tracked {
			e.Steer(p)
		}
		out.Dodged = e.Advance()
		out.GameOver = e.over
	}
	return out
}

// Advance moves every target one tick. In balloon mode targets past the top
// respawn at the bottom. In dodge mode targets past the bottom are removed
// and scored, a collision with the player ends the game, and a new target
// may spawn. It returns the number of dodged targets.
func (e *Engine) Advance() int {
	if e.over {
		return 0
	}

	if e.config.Mode == Balloon {
		for i := range e.targets {
			t := &e.targets[i]
			t.Y += t.VY
			if t.Y < e.config.RespawnY {
				*t = e.spawn(e.config.Height, -e.config.TargetSpeed)
			}
		}
		return 0
	}

	dodged := 0
	live := e.targets[:0]
	for _, t := range e.targets {
		t.Y += t.VY
		if t.Intersects(e.player) {
			e.over = true
		}
		if t.Y > e.config.Height {
			dodged++
			continue
		}
		live = append(live, t)
	}
	e.targets = live
	e.score += dodged

	if !e.over && e.rng.Float64() < e.config.SpawnRate {
		e.targets = append(e.targets, e.spawn(0, e.config.TargetSpeed))
	}
	return dodged
}

// Hit pops every balloon containing p, replaces it at the bottom and adds a
// point for each. It returns the number of balloons popped. Dodge mode has
// no hits.
func (e *Engine) Hit(p cursor.Point) int {
	if e.over || e.config.Mode != Balloon {
		return 0
	}
	hits := 0
	for i := range e.targets {
		if e.targets[i].Contains(p) {
			e.targets[i] = e.spawn(e.config.Height, -e.config.TargetSpeed)
			hits++
		}
	}
	e.score += hits
	return hits
}

// Steer moves the player one step toward the half of the canvas holding p,
// clamped to the canvas.
func (e *Engine) Steer(p cursor.Point) {
	if e.over || e.config.Mode != Dodge {
		return
	}
	if p.X < e.config.Width/2 {
		e.player.X -= e.config.PlayerSpeed
	} else {
		e.player.X += e.config.PlayerSpeed
	}
	maxX := e.config.Width - e.player.W
	if e.player.X < 0 {
		e.player.X = 0
	}
	if e.player.X > maxX {
		e.player.X = maxX
	}
}

func (e *Engine) spawn(y, vy float64) Target {
	span := e.config.SpawnMaxX - e.config.SpawnMinX + 1
	x := e.config.SpawnMinX + e.rng.IntN(span)
	return Target{
		Rect: Rect{X: float64(x), Y: y, W: e.config.TargetWidth, H: e.config.TargetHeight},
		VY:   vy,
	}
}

// Place replaces the live targets. Intended for tests and replays.
func (e *Engine) Place(targets ...Target) {
	e.targets = append(e.targets[:0:0], targets...)
}

// Targets returns a copy of the live targets.
func (e *Engine) Targets() []Target {
	out := make([]Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// Player returns the player sprite. It is the zero Rect in balloon mode.
func (e *Engine) Player() Rect { return e.player }

// Score returns the points earned so far.
func (e *Engine) Score() int { return e.score }

// Over reports whether the game has ended.
func (e *Engine) Over() bool { return e.over }

// Mode returns the scoring policy.
func (e *Engine) Mode() Mode { return e.config.Mode }

// Config returns the engine settings.
func (e *Engine) Config() Config { return e.config }
