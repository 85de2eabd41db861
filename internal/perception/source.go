// Package perception turns a frame source into one landmark observation per tick.
package perception

import (
	"context"
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

// ErrExhausted is returned by Next once the source has no more frames.
// It marks a clean end of stream.
var ErrExhausted = errors.New("perception source exhausted")

// Observation is what the pipeline receives for one tick.
type Observation struct {
	Snapshot *detector.Snapshot
	// Frame is the camera image the snapshot was taken from, if any.
	// It is owned by the receiver for the tick and released with Close.
	Frame *gocv.Mat
}

// Close releases the frame.
func (o *Observation) Close() {
	if o == nil || o.Frame == nil {
		return
	}
	o.Frame.Close()
	o.Frame = nil
}

// Source yields one observation per call.
type Source interface {
	// Next blocks until the next observation is available. It returns
	// ErrExhausted at end of stream.
	Next(ctx context.Context) (*Observation, error)
	Close() error
}
