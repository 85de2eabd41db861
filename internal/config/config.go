// Package config loads and validates the daemon configuration.
//
// Values are layered: Default, then an optional YAML file, then MUDRA_*
// environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/cursor"
	"github.com/ayusman/mudra/internal/debounce"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/render"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Cursor    CursorConfig       `yaml:"cursor" envPrefix:"CURSOR_"`
	Debounce  DebounceConfig     `yaml:"debounce" envPrefix:"DEBOUNCE_"`
	Hand      gesture.HandConfig `yaml:"hand"`
	Eye       gesture.EyeConfig  `yaml:"eye"`
	Game      GameConfig         `yaml:"game" envPrefix:"GAME_"`
	Pipeline  PipelineConfig     `yaml:"pipeline" envPrefix:"PIPELINE_"`
	Actuation action.Config      `yaml:"actuation" envPrefix:"ACTUATION_"`
	Server    ServerConfig       `yaml:"server" envPrefix:"SERVER_"`
	Store     StoreConfig        `yaml:"store" envPrefix:"STORE_"`

	// PluginDir is scanned for plugin.json manifests.
	PluginDir string `yaml:"plugin_dir" env:"PLUGIN_DIR"`
}

// CursorConfig tunes the smoothing filter and coordinate mapping.
type CursorConfig struct {
	Alpha float64 `yaml:"smoothing_alpha" env:"SMOOTHING_ALPHA"`
	// Sensitivity scales pointer motion about the screen centre.
	Sensitivity float64 `yaml:"sensitivity" env:"SENSITIVITY"`
	// GameSensitivity scales gaze motion on the eye game canvas.
	GameSensitivity float64 `yaml:"game_sensitivity" env:"GAME_SENSITIVITY"`
}

// DebounceConfig tunes the gate between discrete actions.
type DebounceConfig struct {
	IntervalMS int    `yaml:"interval_ms" env:"INTERVAL_MS"`
	Policy     string `yaml:"policy" env:"POLICY"`
}

// Interval returns the debounce interval as a duration.
func (d DebounceConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

// GameConfig holds the two engine presets.
type GameConfig struct {
	Balloon game.Config `yaml:"balloon" envPrefix:"BALLOON_"`
	Dodge   game.Config `yaml:"dodge" envPrefix:"DODGE_"`
}

// PipelineConfig tunes the tick loop and its perception inputs.
type PipelineConfig struct {
	TickDelayMS int `yaml:"tick_delay_ms" env:"TICK_DELAY_MS"`
	// MotionThreshold is the percentage of changed pixels that triggers inference.
	MotionThreshold float64 `yaml:"motion_threshold" env:"MOTION_THRESHOLD"`
	// MotionMaxSkip forces inference after this many still frames.
	MotionMaxSkip int            `yaml:"motion_max_skip" env:"MOTION_MAX_SKIP"`
	Camera        capture.Config `yaml:"camera" envPrefix:"CAMERA_"`
	Render        render.Config  `yaml:"render" envPrefix:"RENDER_"`
}

// TickDelay returns the inter-tick sleep as a duration.
func (p PipelineConfig) TickDelay() time.Duration {
	return time.Duration(p.TickDelayMS) * time.Millisecond
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
	// WebDir serves static files when set.
	WebDir string `yaml:"web_dir" env:"WEB_DIR"`
	// StopOnDisconnect terminates the running session when its last
	// stream viewer goes away.
	StopOnDisconnect bool `yaml:"stop_on_disconnect" env:"STOP_ON_DISCONNECT"`
}

// StoreConfig configures persistence. An empty Path selects ~/.mudra/mudra.db.
type StoreConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cursor: CursorConfig{
			Alpha:           cursor.DefaultAlpha,
			Sensitivity:     1.0,
			GameSensitivity: 1.5,
		},
		Debounce: DebounceConfig{
			IntervalMS: 300,
			Policy:     string(debounce.PolicyShared),
		},
		Hand: gesture.DefaultHandConfig(),
		Eye:  gesture.DefaultEyeConfig(),
		Game: GameConfig{
			Balloon: game.BalloonConfig(),
			Dodge:   game.DodgeConfig(),
		},
		Pipeline: PipelineConfig{
			TickDelayMS:     10,
			MotionThreshold: 1.0,
			MotionMaxSkip:   5,
			Camera:          capture.DefaultConfig(),
			Render:          render.DefaultConfig(),
		},
		Actuation: action.DefaultConfig(),
		Server: ServerConfig{
			Addr:             ":8080",
			StopOnDisconnect: true,
		},
		PluginDir: "plugins",
	}
}

// Validate checks every section. Errors wrap ErrInvalid.
func (c Config) Validate() error {
	if c.Cursor.Alpha <= 0 || c.Cursor.Alpha > 1 {
		return fmt.Errorf("%w: cursor.smoothing_alpha must be in (0, 1], got %v", ErrInvalid, c.Cursor.Alpha)
	}
	if c.Cursor.Sensitivity <= 0 || c.Cursor.GameSensitivity <= 0 {
		return fmt.Errorf("%w: cursor sensitivity must be positive", ErrInvalid)
	}

	if c.Debounce.IntervalMS <= 0 {
		return fmt.Errorf("%w: debounce.interval_ms must be positive, got %d", ErrInvalid, c.Debounce.IntervalMS)
	}
	if _, err := debounce.ParsePolicy(c.Debounce.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := validateHand(c.Hand); err != nil {
		return err
	}
	if err := validateEye(c.Eye); err != nil {
		return err
	}

	if c.Game.Balloon.Mode != game.Balloon {
		return fmt.Errorf("%w: game.balloon.mode must be %q", ErrInvalid, game.Balloon)
	}
	if err := c.Game.Balloon.Validate(); err != nil {
		return fmt.Errorf("%w: game.balloon: %w", ErrInvalid, err)
	}
	if c.Game.Dodge.Mode != game.Dodge {
		return fmt.Errorf("%w: game.dodge.mode must be %q", ErrInvalid, game.Dodge)
	}
	if err := c.Game.Dodge.Validate(); err != nil {
		return fmt.Errorf("%w: game.dodge: %w", ErrInvalid, err)
	}

	p := c.Pipeline
	if p.TickDelayMS < 0 {
		return fmt.Errorf("%w: pipeline.tick_delay_ms must not be negative", ErrInvalid)
	}
	if p.MotionThreshold < 0 || p.MotionMaxSkip < 0 {
		return fmt.Errorf("%w: pipeline motion settings must not be negative", ErrInvalid)
	}
	if p.Camera.Width <= 0 || p.Camera.Height <= 0 || p.Camera.FPS <= 0 {
		return fmt.Errorf("%w: pipeline.camera size and fps must be positive", ErrInvalid)
	}
	if p.Render.Quality < 1 || p.Render.Quality > 100 {
		return fmt.Errorf("%w: pipeline.render.jpeg_quality must be in [1, 100]", ErrInvalid)
	}

	a := c.Actuation
	if a.Timeout <= 0 {
		return fmt.Errorf("%w: actuation.timeout must be positive", ErrInvalid)
	}
	if a.PointerDuration < 0 {
		return fmt.Errorf("%w: actuation.pointer_duration must not be negative", ErrInvalid)
	}
	if a.ScrollStep <= 0 {
		return fmt.Errorf("%w: actuation.scroll_step must be positive", ErrInvalid)
	}
	if a.BrightnessStep <= 0 || a.BrightnessStep > 100 {
		return fmt.Errorf("%w: actuation.brightness_step must be in [1, 100]", ErrInvalid)
	}
	if len(a.SwipeKeys) == 0 {
		return fmt.Errorf("%w: actuation.swipe_keys must not be empty", ErrInvalid)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	return nil
}

func validateHand(h gesture.HandConfig) error {
	if h.DoubleClickEpsilon < 0 {
		return fmt.Errorf("%w: hand.double_click_epsilon must not be negative", ErrInvalid)
	}
	if h.ScrollDirection != "up" && h.ScrollDirection != "down" {
		return fmt.Errorf("%w: hand.scroll_direction %q is not up or down", ErrInvalid, h.ScrollDirection)
	}
	for name, idx := range map[string]int{
		"palm_landmark":    h.PalmLandmark,
		"pointer_landmark": h.PointerLandmark,
	} {
		if idx < 0 || idx >= detector.NumLandmarks {
			return fmt.Errorf("%w: hand.%s %d out of range", ErrInvalid, name, idx)
		}
	}
	return nil
}

func validateEye(e gesture.EyeConfig) error {
	if e.BlinkThreshold <= 0 {
		return fmt.Errorf("%w: eye.blink_threshold must be positive", ErrInvalid)
	}
	for name, idx := range map[string]int{
		"upper_lid":     e.UpperLid,
		"lower_lid":     e.LowerLid,
		"gaze_landmark": e.GazeLandmark,
		"second_lid":    e.SecondLid,
	} {
		if idx < 0 || idx >= detector.NumFaceMesh {
			return fmt.Errorf("%w: eye.%s %d out of range", ErrInvalid, name, idx)
		}
	}
	return nil
}
