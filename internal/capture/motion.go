package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	blurKernel    = 21
	diffThreshold = 25
)

// MotionGate decides whether a frame changed enough since the last one to be
// worth running landmark inference on. Still frames reuse the previous result.
// A frame is always let through after MaxSkip consecutive still frames so a
// motionless subject keeps being tracked.
type MotionGate struct {
	threshold float64
	maxSkip   int
	skipped   int
	prev      gocv.Mat
	primed    bool
	mu        sync.Mutex
}

// NewMotionGate creates a gate that opens when more than threshold percent of
// pixels change. maxSkip <= 0 disables the forced refresh.
func NewMotionGate(threshold float64, maxSkip int) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		maxSkip:   maxSkip,
		prev:      gocv.NewMat(),
	}
}

// Open reports whether frame should be analyzed, and the percentage of
// pixels that changed. The first frame always opens the gate.
func (m *MotionGate) Open(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)

	if !m.primed {
		blurred.CopyTo(&m.prev)
		m.primed = true
		m.skipped = 0
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0
	blurred.CopyTo(&m.prev)

	if changed > m.threshold {
		m.skipped = 0
		return true, changed
	}

	m.skipped++
	if m.maxSkip > 0 && m.skipped > m.maxSkip {
		m.skipped = 0
		return true, changed
	}
	return false, changed
}

// Reset forgets the previous frame; the next frame opens the gate.
func (m *MotionGate) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the stored frame.
func (m *MotionGate) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionGate) release() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.primed = false
	m.skipped = 0
}

// Threshold returns the change percentage above which the gate opens.
func (m *MotionGate) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}
