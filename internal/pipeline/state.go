package pipeline

import (
	"time"

	"github.com/ayusman/mudra/internal/cursor"
)

// State is the lifecycle stage of a pipeline.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reason explains why a pipeline stopped.
type Reason string

const (
	ReasonTerminated Reason = "terminated"
	ReasonExhausted  Reason = "exhausted"
	ReasonAcquire    Reason = "acquisition_failed"
	ReasonCanceled   Reason = "canceled"
	ReasonGameOver   Reason = "game_over"
)

// Frame is one encoded image emitted by a tick.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	JPEG      []byte
}

// TickEvent describes what happened during one tick.
type TickEvent struct {
	Seq        uint64       `json:"seq"`
	Time       time.Time    `json:"time"`
	Tracked    bool         `json:"tracked"`
	Cursor     cursor.Point `json:"cursor"`
	Gesture    string       `json:"gesture"`
	Dispatched bool         `json:"dispatched"`
	Score      int          `json:"score"`
	GameOver   bool         `json:"game_over,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Stats are the running totals of a pipeline.
type Stats struct {
	Ticks    uint64 `json:"ticks"`
	Actions  uint64 `json:"actions"`
	Score    int    `json:"score"`
	GameOver bool   `json:"game_over"`
	Reason   Reason `json:"reason,omitempty"`
}
