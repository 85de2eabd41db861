// Package capture reads camera frames using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrCameraNotOpen is returned when reading from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrEndOfStream is returned by finite sources once every frame was read.
	ErrEndOfStream = errors.New("end of stream")

	// ErrNoFrame is returned when the device delivers no image.
	ErrNoFrame = errors.New("camera delivered no frame")
)

// Config selects the capture device and frame geometry.
type Config struct {
	DeviceID int `yaml:"device_id" env:"DEVICE_ID"`
	Width    int `yaml:"width" env:"WIDTH"`
	Height   int `yaml:"height" env:"HEIGHT"`
	FPS      int `yaml:"fps" env:"FPS"`
	// Mirror flips frames horizontally so on-screen motion matches the user's.
	Mirror bool `yaml:"mirror" env:"MIRROR"`
}

// DefaultConfig returns a 640x480 mirrored capture of device 0.
func DefaultConfig() Config {
	return Config{
		DeviceID: 0,
		Width:    640,
		Height:   480,
		FPS:      30,
		Mirror:   true,
	}
}

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// deviceCamera reads from a local capture device through OpenCV.
type deviceCamera struct {
	config Config

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewCamera creates a Camera for config. The device is opened by Open.
func NewCamera(config Config) Camera {
	return &deviceCamera{config: config}
}

func (c *deviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.config.DeviceID)
	if err != nil {
		return fmt.Errorf("open device %d: %w", c.config.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open device %d: %w", c.config.DeviceID, ErrCameraNotOpen)
	}

	for prop, v := range map[gocv.VideoCaptureProperties]int{
		gocv.VideoCaptureFrameWidth:  c.config.Width,
		gocv.VideoCaptureFrameHeight: c.config.Height,
		gocv.VideoCaptureFPS:         c.config.FPS,
	} {
		if v > 0 {
			capture.Set(prop, float64(v))
		}
	}

	c.capture = capture
	return nil
}

func (c *deviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

func (c *deviceCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}

	if c.config.Mirror {
		Mirror(&mat)
	}
	return &mat, nil
}

// SetFPS sets the capture rate. Values <= 0 are ignored.
func (c *deviceCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.FPS = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *deviceCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.FPS
}

func (c *deviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

// Mirror flips frame around the vertical axis in place.
func Mirror(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	gocv.Flip(*frame, frame, 1)
}
