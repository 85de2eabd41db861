// Package debounce enforces a minimum dwell time between accepted discrete actions.
package debounce

import (
	"fmt"
	"sync"
	"time"
)

// Gate accepts a candidate action only if at least Interval has elapsed
// since the previous accepted action. The first candidate is always accepted.
type Gate struct {
	interval time.Duration
	last     time.Time
	accepted bool
}

// NewGate creates a Gate. The interval must be positive.
func NewGate(interval time.Duration) (*Gate, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive, got %v", interval)
	}
	return &Gate{interval: interval}, nil
}

// TryAccept reports whether an action at now may proceed and, if so,
// records now as the last accepted time.
func (g *Gate) TryAccept(now time.Time) bool {
	if g.accepted && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	g.accepted = true
	return true
}

// Interval returns the configured dwell time.
func (g *Gate) Interval() time.Duration { return g.interval }

// LastAccepted returns the time of the last accepted action and whether one exists.
func (g *Gate) LastAccepted() (time.Time, bool) { return g.last, g.accepted }

// Policy selects how gates are shared between gesture kinds.
type Policy string

const (
	// PolicyShared uses one timestamp for every gesture kind: accepting one
	// gesture suppresses all others for the interval.
	PolicyShared Policy = "shared"
	// PolicyPerGesture keeps an independent gate per gesture kind.
	PolicyPerGesture Policy = "per-gesture"
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyShared, "":
		return PolicyShared, nil
	case PolicyPerGesture:
		return PolicyPerGesture, nil
	default:
		return "", fmt.Errorf("unknown debounce policy %q", s)
	}
}

// Throttle applies a Policy over keyed gates.
type Throttle struct {
	policy   Policy
	interval time.Duration
	shared   *Gate
	perKind  map[string]*Gate
	mu       sync.Mutex
}

// NewThrottle creates a Throttle for the given policy and interval.
func NewThrottle(policy Policy, interval time.Duration) (*Throttle, error) {
	if policy != PolicyShared && policy != PolicyPerGesture {
		return nil, fmt.Errorf("unknown debounce policy %q", policy)
	}
	shared, err := NewGate(interval)
	if err != nil {
		return nil, err
	}
	return &Throttle{
		policy:   policy,
		interval: interval,
		shared:   shared,
		perKind:  make(map[string]*Gate),
	}, nil
}

// Allow reports whether an action of the given kind may proceed at now.
func (t *Throttle) Allow(kind string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.policy == PolicyShared {
		return t.shared.TryAccept(now)
	}

	g, ok := t.perKind[kind]
	if !ok {
		g = &Gate{interval: t.interval}
		t.perKind[kind] = g
	}
	return g.TryAccept(now)
}

// Policy returns the configured policy.
func (t *Throttle) Policy() Policy { return t.policy }
