package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the daemon reads.
const EnvPrefix = "MUDRA_"

// LoadFile overlays the YAML file at path onto c. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return nil
}

// ApplyEnv overlays MUDRA_* variables from environ onto c. A nil environ
// reads the process environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("%w: environment: %w", ErrInvalid, err)
	}
	return nil
}

// NewFlagSet returns the daemon flags bound to c. The --config flag is
// registered but not bound.
func NewFlagSet(name string, c *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML configuration file (env "+EnvPrefix+"CONFIG)")

	fs.StringVar(&c.Server.Addr, "addr", c.Server.Addr, "HTTP listen address")
	fs.StringVar(&c.Server.WebDir, "web-dir", c.Server.WebDir, "static web directory")
	fs.BoolVar(&c.Server.StopOnDisconnect, "stop-on-disconnect", c.Server.StopOnDisconnect, "terminate the session when the last stream viewer leaves")
	fs.StringVar(&c.Store.Path, "db", c.Store.Path, "SQLite database path")
	fs.StringVar(&c.PluginDir, "plugin-dir", c.PluginDir, "plugin directory")

	fs.Float64Var(&c.Cursor.Alpha, "smoothing-alpha", c.Cursor.Alpha, "cursor smoothing factor in (0, 1]")
	fs.Float64Var(&c.Cursor.Sensitivity, "sensitivity", c.Cursor.Sensitivity, "pointer sensitivity")
	fs.Float64Var(&c.Cursor.GameSensitivity, "game-sensitivity", c.Cursor.GameSensitivity, "gaze sensitivity on the game canvas")

	fs.IntVar(&c.Debounce.IntervalMS, "debounce-interval-ms", c.Debounce.IntervalMS, "minimum time between discrete actions")
	fs.StringVar(&c.Debounce.Policy, "debounce-policy", c.Debounce.Policy, "shared or per-gesture")

	fs.StringVar(&c.Hand.ScrollDirection, "scroll-direction", c.Hand.ScrollDirection, "two-finger scroll direction, up or down")
	fs.BoolVar(&c.Hand.SwipeMode, "swipe-mode", c.Hand.SwipeMode, "two-finger pose sends a page swipe instead of scrolling")

	fs.IntVar(&c.Pipeline.TickDelayMS, "tick-delay-ms", c.Pipeline.TickDelayMS, "sleep between ticks")
	fs.IntVar(&c.Pipeline.Camera.DeviceID, "camera", c.Pipeline.Camera.DeviceID, "camera device index")
	fs.BoolVar(&c.Pipeline.Camera.Mirror, "mirror", c.Pipeline.Camera.Mirror, "mirror camera frames")

	fs.Float64Var(&c.Game.Balloon.TargetSpeed, "balloon-speed", c.Game.Balloon.TargetSpeed, "balloon rise per tick")
	fs.Float64Var(&c.Game.Dodge.TargetSpeed, "dodge-speed", c.Game.Dodge.TargetSpeed, "obstacle fall per tick")
	fs.Float64Var(&c.Game.Dodge.SpawnRate, "spawn-rate", c.Game.Dodge.SpawnRate, "obstacle spawn probability per tick")

	fs.DurationVar(&c.Actuation.Timeout, "actuation-timeout", c.Actuation.Timeout, "bound on each host call")
	fs.StringVar(&c.Actuation.ScreenshotDir, "screenshot-dir", c.Actuation.ScreenshotDir, "screenshot output directory")
	return fs
}

// Load builds the configuration from args and environ and validates it.
// It returns the arguments left after flag parsing.
func Load(name string, args []string, environ map[string]string) (*Config, []string, error) {
	probe := Default()
	fs := NewFlagSet(name, &probe)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	path, _ := fs.GetString("config")
	if path == "" {
		path = lookup(environ, EnvPrefix+"CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, nil, err
	}

	// Flags win: replay the ones given on the command line onto cfg.
	final := NewFlagSet(name, &cfg)
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err == nil {
			err = final.Set(f.Name, f.Value.String())
		}
	})
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, fs.Args(), nil
}

func lookup(environ map[string]string, key string) string {
	if environ == nil {
		return os.Getenv(key)
	}
	return environ[key]
}
