package session

import (
	"context"
	"fmt"
	"log"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/perception"
)

// CameraSources opens the configured camera with a MediaPipe detector tuned
// for each program. Frames below the motion threshold reuse the previous
// landmarks.
func CameraSources(cfg config.PipelineConfig) SourceFactory {
	return func(ctx context.Context, p Program) (perception.Source, error) {
		det, err := detector.NewMediaPipeDetector(p.DetectorConfig())
		if err != nil {
			return nil, fmt.Errorf("landmark detector: %w", err)
		}
		log.Printf("session: using MediaPipe %s detection (confidence %.1f)", p.Kind(), p.DetectorConfig().MinConfidence)

		var gate *capture.MotionGate
		if cfg.MotionThreshold > 0 {
			gate = capture.NewMotionGate(cfg.MotionThreshold, cfg.MotionMaxSkip)
		}

		src, err := perception.NewCameraSource(capture.NewCamera(cfg.Camera), det, gate, p.Kind())
		if err != nil {
			det.Close()
			if gate != nil {
				gate.Close()
			}
			return nil, err
		}
		return src, nil
	}
}
