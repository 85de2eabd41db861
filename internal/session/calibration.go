package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
)

// Calibrate overlays a stored profile onto the hand or eye thresholds used
// by p. An empty profile leaves cfg unchanged.
func Calibrate(p Program, cfg config.Config, profile json.RawMessage) (config.Config, error) {
	if len(bytes.TrimSpace(profile)) == 0 {
		return cfg, nil
	}

	var target any = &cfg.Hand
	if p.Kind() == detector.KindFace {
		target = &cfg.Eye
	}

	dec := json.NewDecoder(bytes.NewReader(profile))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return cfg, fmt.Errorf("%w: calibration for %s: %w", config.ErrInvalid, p, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("calibration for %s: %w", p, err)
	}
	return cfg, nil
}
