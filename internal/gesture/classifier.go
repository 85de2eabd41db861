package gesture

import "github.com/ayusman/mudra/internal/detector"

// Rule is one row of a classification table. Rules are evaluated in order and
// the first whose predicate holds decides the gesture for the frame.
type Rule struct {
	Name string
	Emit Gesture
	When func(s *detector.Snapshot) bool
}

// Classifier maps snapshots to gestures through an ordered rule table.
type Classifier struct {
	rules []Rule
	track func(s *detector.Snapshot) detector.Point3D
}

// NewClassifier creates a classifier over rules. track selects the landmark
// that drives the pointer for this table.
func NewClassifier(rules []Rule, track func(s *detector.Snapshot) detector.Point3D) *Classifier {
	r := make([]Rule, len(rules))
	copy(r, rules)
	return &Classifier{rules: r, track: track}
}

// Classify returns the gesture of the first matching rule, or Idle when the
// snapshot is empty or nothing matches. PointerMove results carry no position;
// the caller fills it from the smoothed cursor.
func (c *Classifier) Classify(s *detector.Snapshot) Gesture {
	rule, ok := c.Match(s)
	if !ok {
		return None
	}
	return rule.Emit
}

// Match returns the first matching rule.
func (c *Classifier) Match(s *detector.Snapshot) (Rule, bool) {
	if s.Empty() {
		return Rule{}, false
	}
	for _, r := range c.rules {
		if r.When(s) {
			return r, true
		}
	}
	return Rule{}, false
}

// Track returns the normalized landmark position that drives the pointer.
// The boolean is false for empty snapshots.
func (c *Classifier) Track(s *detector.Snapshot) (detector.Point3D, bool) {
	if s.Empty() || c.track == nil {
		return detector.Point3D{}, false
	}
	return c.track(s), true
}

// Rules returns the rule names in priority order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}
