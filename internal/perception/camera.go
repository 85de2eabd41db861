package perception

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
)

// CameraSource reads frames from a camera and runs landmark detection on
// them. When a motion gate is set, still frames reuse the last detection.
type CameraSource struct {
	camera   capture.Camera
	detector detector.Detector
	gate     *capture.MotionGate
	kind     detector.Kind
	now      func() time.Time

	mu   sync.Mutex
	seq  uint64
	last *detector.Landmarks
}

// NewCameraSource opens camera and returns a source producing snapshots of kind.
// gate may be nil to analyze every frame.
func NewCameraSource(camera capture.Camera, det detector.Detector, gate *capture.MotionGate, kind detector.Kind) (*CameraSource, error) {
	if err := camera.Open(); err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	return &CameraSource{
		camera:   camera,
		detector: det,
		gate:     gate,
		kind:     kind,
		now:      time.Now,
	}, nil
}

// Kind returns the landmark model the source produces.
func (s *CameraSource) Kind() detector.Kind { return s.kind }

// Next reads one frame and returns its observation. Only camera failures
// are returned as errors; a failed detection yields an empty snapshot.
func (s *CameraSource) Next(ctx context.Context) (*Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	frame, err := s.camera.ReadFrame()
	if errors.Is(err, capture.ErrEndOfStream) {
		return nil, ErrExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	analyze := true
	if s.gate != nil {
		analyze, _ = s.gate.Open(frame)
	}

	if analyze {
		subjects, err := s.detector.Detect(frame)
		s.last = nil
		if err != nil {
			// A failed inference counts as nothing detected; the camera keeps going.
			log.Printf("perception: detect landmarks: %v", err)
		} else if len(subjects) > 0 {
			best := subjects[0]
			s.last = &best
		}
	}

	s.seq++
	snap, err := detector.NewSnapshot(s.kind, s.seq, s.now(), s.last)
	if err != nil {
		// A malformed subject counts as nothing detected.
		log.Printf("perception: dropping landmarks: %v", err)
		s.last = nil
		snap, _ = detector.NewSnapshot(s.kind, s.seq, s.now(), nil)
	}

	return &Observation{Snapshot: snap, Frame: frame}, nil
}

// Close releases the camera, the detector and the gate.
func (s *CameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate != nil {
		s.gate.Close()
	}
	detErr := s.detector.Close()
	if err := s.camera.Close(); err != nil {
		return err
	}
	return detErr
}
