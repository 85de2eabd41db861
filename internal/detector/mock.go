package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	subjects []Landmarks
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetLandmarks sets the subjects that will be returned by Detect.
func (m *MockDetector) SetLandmarks(subjects []Landmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = subjects
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured subjects or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Landmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.subjects, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// palmY is the wrist height used by the preset hand poses.
const palmY = 0.8

// HandPose returns a right hand with the wrist at y=0.8 and the four
// fingertips (index, middle, ring, pinky) at the given heights. Smaller y is
// higher in the frame. Intermediate joints are interpolated between the
// knuckle and the tip.
func HandPose(indexY, middleY, ringY, pinkyY float64) Landmarks {
	lm := Landmarks{
		Kind:       KindHand,
		Points:     make([]Point3D, NumLandmarks),
		Handedness: "Right",
		Score:      0.95,
	}
	p := lm.Points

	p[Wrist] = Point3D{X: 0.5, Y: palmY, Z: 0.0}

	// Thumb extended to the side
	p[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	p[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	p[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	p[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	finger := func(mcp int, x, mcpY, tipY float64) {
		p[mcp] = Point3D{X: x, Y: mcpY}
		p[mcp+1] = Point3D{X: x, Y: mcpY + (tipY-mcpY)*0.4}
		p[mcp+2] = Point3D{X: x, Y: mcpY + (tipY-mcpY)*0.7}
		p[mcp+3] = Point3D{X: x, Y: tipY}
	}
	finger(IndexMCP, 0.58, 0.68, indexY)
	finger(MiddleMCP, 0.50, 0.66, middleY)
	finger(RingMCP, 0.43, 0.68, ringY)
	finger(PinkyMCP, 0.36, 0.70, pinkyY)

	return lm
}

// OpenPalmLandmarks returns a hand with all four fingers raised above the palm.
func OpenPalmLandmarks() Landmarks {
	return HandPose(0.35, 0.28, 0.35, 0.42)
}

// HangingHandLandmarks returns a hand with all four fingers pointing below the palm.
func HangingHandLandmarks() Landmarks {
	return HandPose(0.95, 0.97, 0.94, 0.92)
}

// VictoryLandmarks returns a hand with index and middle raised and ring and pinky curled below the palm.
func VictoryLandmarks() Landmarks {
	return HandPose(0.35, 0.30, 0.86, 0.88)
}

// ThreeFingersLandmarks returns a hand with middle, ring and pinky raised and the index below the palm.
func ThreeFingersLandmarks() Landmarks {
	return HandPose(0.86, 0.30, 0.35, 0.42)
}

// PointingLandmarks returns a hand with index, middle and ring raised and the pinky below the palm.
// It only satisfies the pointer rule.
func PointingLandmarks() Landmarks {
	return HandPose(0.35, 0.30, 0.36, 0.88)
}

// PinchDownLandmarks returns a hand with index and middle tips level below
// the palm while the ring finger is raised.
func PinchDownLandmarks() Landmarks {
	return HandPose(0.90, 0.905, 0.40, 0.95)
}

// FaceLandmarks returns a face mesh whose left eyelid gap (lower.y - upper.y)
// equals gap and whose right iris sits at (irisX, irisY).
func FaceLandmarks(gap, irisX, irisY float64) Landmarks {
	return Landmarks{
		Kind: KindFace,
		Points: FacePoints(map[int]Point3D{
			LeftEyeUpper:       {X: 0.40, Y: 0.45},
			LeftEyeLower:       {X: 0.40, Y: 0.45 + gap},
			RightEyeLower:      {X: 0.60, Y: 0.46},
			RightIrisFirst:     {X: irisX - 0.005, Y: irisY},
			RightIrisRight:     {X: irisX, Y: irisY},
			RightIrisFirst + 2: {X: irisX + 0.005, Y: irisY},
			RightIrisLast:      {X: irisX, Y: irisY + 0.005},
		}),
		Score: 0.9,
	}
}
