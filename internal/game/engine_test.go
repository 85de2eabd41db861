package game

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/ayusman/mudra/internal/cursor"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestNewEngine_Balloon(t *testing.T) {
	e, err := NewEngine(BalloonConfig(), seeded())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	targets := e.Targets()
	if len(targets) != 5 {
		t.Fatalf("expected 5 balloons, got %d", len(targets))
	}
	for i, tg := range targets {
		if tg.Y != 600 || tg.X < 100 || tg.X > 700 {
			t.Errorf("balloon %d spawned at (%v, %v)", i, tg.X, tg.Y)
		}
		if tg.W != 150 || tg.H != 170 || tg.VY != -2 {
			t.Errorf("balloon %d geometry = %+v", i, tg)
		}
	}
}

func TestEngine_BalloonHit(t *testing.T) {
	e, _ := NewEngine(BalloonConfig(), seeded())
	e.Place(Target{Rect: Rect{X: 400, Y: 300, W: 150, H: 170}, VY: -2})

	out := e.Step(cursor.Point{X: 450, Y: 350}, true)

	if out.Hits != 1 || e.Score() != 1 {
		t.Fatalf("hits = %d, score = %d, want 1 and 1", out.Hits, e.Score())
	}
	targets := e.Targets()
	if len(targets) != 1 {
		t.Fatalf("expected the pool size to be kept, got %d targets", len(targets))
	}
	if r := targets[0]; r.Y != 600 || r.X < 100 || r.X > 700 {
		t.Errorf("replacement at (%v, %v), want y=600 and x in [100, 700]", r.X, r.Y)
	}
}

func TestEngine_BalloonMissIsLenient(t *testing.T) {
	e, _ := NewEngine(BalloonConfig(), seeded())
	e.Place(Target{Rect: Rect{X: 200, Y: -69, W: 150, H: 170}, VY: -2})

	out := e.Step(cursor.Point{X: 0, Y: 0}, true)

	if out != (Outcome{}) || e.Over() || e.Score() != 0 {
		t.Errorf("a missed balloon must not score or end the game: %+v", out)
	}
	if y := e.Targets()[0].Y; y != 600 {
		t.Errorf("missed balloon y = %v, want respawn at 600", y)
	}
}

func TestEngine_BalloonUntracked(t *testing.T) {
	e, _ := NewEngine(BalloonConfig(), seeded())
	e.Place(Target{Rect: Rect{X: 0, Y: 0, W: 800, H: 600}, VY: -2})

	if out := e.Step(cursor.Point{X: 10, Y: 10}, false); out.Hits != 0 {
		t.Error("an untracked cursor must not hit")
	}
}

func TestEngine_DodgeSteer(t *testing.T) {
	cfg := DodgeConfig()
	cfg.SpawnRate = 0
	e, _ := NewEngine(cfg, seeded())

	tests := []struct {
		cursorX float64
		steps   int
		wantX   float64
	}{
		{100, 1, 320},
		{700, 2, 360},
		{700, 100, 680},
		{0, 100, 0},
	}
	for _, tt := range tests {
		for i := 0; i < tt.steps; i++ {
			e.Step(cursor.Point{X: tt.cursorX, Y: 300}, true)
		}
		if got := e.Player().X; got != tt.wantX {
			t.Errorf("after %d steps toward x=%v: player x = %v, want %v", tt.steps, tt.cursorX, got, tt.wantX)
		}
	}
}

func TestEngine_DodgeScoring(t *testing.T) {
	cfg := DodgeConfig()
	cfg.SpawnRate = 0
	e, _ := NewEngine(cfg, seeded())
	e.Place(
		Target{Rect: Rect{X: 0, Y: 595, W: 100, H: 100}, VY: 8},
		Target{Rect: Rect{X: 700, Y: 100, W: 100, H: 100}, VY: 8},
	)

	out := e.Step(cursor.Point{}, false)

	if out.Dodged != 1 || e.Score() != 1 {
		t.Errorf("dodged = %d, score = %d, want 1 and 1", out.Dodged, e.Score())
	}
	if n := len(e.Targets()); n != 1 {
		t.Errorf("expected 1 target left, got %d", n)
	}
	if out.GameOver {
		t.Error("game should continue")
	}
}

func TestEngine_DodgeCollision(t *testing.T) {
	cfg := DodgeConfig()
	cfg.SpawnRate = 0
	e, _ := NewEngine(cfg, seeded())
	e.Place(Target{Rect: Rect{X: 360, Y: 380, W: 100, H: 100}, VY: 8})

	out := e.Step(cursor.Point{}, false)
	if !out.GameOver || !e.Over() {
		t.Fatal("collision with the player should end the game")
	}

	score := e.Score()
	if out := e.Step(cursor.Point{X: 700}, true); !out.GameOver {
		t.Error("a finished game stays over")
	}
	if e.Score() != score || e.Player().X != 340 {
		t.Error("a finished game must not change")
	}
}

func TestEngine_DodgeSpawn(t *testing.T) {
	cfg := DodgeConfig()
	cfg.SpawnRate = 1
	e, _ := NewEngine(cfg, seeded())

	e.Advance()
	targets := e.Targets()
	if len(targets) != 1 {
		t.Fatalf("expected a spawn with rate 1, got %d targets", len(targets))
	}
	if tg := targets[0]; tg.Y != 0 || tg.X < 50 || tg.X > 750 || tg.VY != 8 {
		t.Errorf("spawned target = %+v", tg)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() []Target {
		e, _ := NewEngine(DodgeConfig(), seeded())
		for i := 0; i < 200; i++ {
			e.Step(cursor.Point{X: float64(i % 800)}, true)
		}
		return e.Targets()
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs diverged: %d vs %d targets", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs diverged at target %d", i)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "golf" }},
		{"zero canvas", func(c *Config) { c.Width = 0 }},
		{"zero speed", func(c *Config) { c.TargetSpeed = 0 }},
		{"inverted spawn", func(c *Config) { c.SpawnMinX = 800 }},
		{"spawn rate", func(c *Config) { c.SpawnRate = 1.5 }},
		{"wide player", func(c *Config) { c.PlayerWidth = 900 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DodgeConfig()
			tt.mutate(&cfg)
			if _, err := NewEngine(cfg, seeded()); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewEngine() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	balloon := BalloonConfig()
	balloon.PoolSize = 0
	if err := balloon.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRect(t *testing.T) {
	r := Rect{X: 10, Y: 10, W: 10, H: 10}
	if !r.Contains(cursor.Point{X: 10, Y: 19.9}) || r.Contains(cursor.Point{X: 20, Y: 15}) {
		t.Error("Contains() edge handling is wrong")
	}
	if !r.Intersects(Rect{X: 19, Y: 19, W: 5, H: 5}) || r.Intersects(Rect{X: 20, Y: 10, W: 5, H: 5}) {
		t.Error("Intersects() edge handling is wrong")
	}
}
