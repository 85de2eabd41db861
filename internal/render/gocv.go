package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/game"
)

var (
	markerColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	cursorColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	targetColor = color.RGBA{R: 255, G: 160, B: 0, A: 255}
	playerColor = color.RGBA{R: 0, G: 160, B: 255, A: 255}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	bannerColor = color.RGBA{R: 200, G: 0, B: 0, A: 255}
)

// Config sets the output image.
type Config struct {
	Width   int `yaml:"width" env:"WIDTH"`
	Height  int `yaml:"height" env:"HEIGHT"`
	Quality int `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
}

// DefaultConfig returns a 640x480 output at JPEG quality 80.
func DefaultConfig() Config {
	return Config{Width: 640, Height: 480, Quality: 80}
}

// GoCV draws scenes with OpenCV and encodes them as JPEG.
type GoCV struct {
	config Config
}

// NewGoCV creates a GoCV renderer.
func NewGoCV(config Config) (*GoCV, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("render size %dx%d", config.Width, config.Height)
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 80
	}
	return &GoCV{config: config}, nil
}

// Render draws scene onto a copy of its frame (or a black canvas) and returns the JPEG bytes.
func (g *GoCV) Render(scene Scene) ([]byte, error) {
	img, err := g.canvas(scene.Frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	w, h := img.Cols(), img.Rows()
	sx, sy := 1.0, 1.0
	if scene.Space.X > 0 && scene.Space.Y > 0 {
		sx = float64(w) / float64(scene.Space.X)
		sy = float64(h) / float64(scene.Space.Y)
	}
	scale := func(x, y float64) image.Point {
		return image.Pt(int(x*sx), int(y*sy))
	}

	if !scene.Snapshot.Empty() {
		markers := scene.Markers
		if markers == nil {
			markers = make([]int, scene.Snapshot.Len())
			for i := range markers {
				markers[i] = i
			}
		}
		for _, i := range markers {
			p := scene.Snapshot.Point(i)
			gocv.Circle(&img, image.Pt(int(p.X*float64(w)), int(p.Y*float64(h))), 3, markerColor, -1)
		}
	}

	for _, t := range scene.Targets {
		gocv.Rectangle(&img, rect(t.Rect, scale), targetColor, 2)
	}
	if scene.Player != nil {
		gocv.Rectangle(&img, rect(*scene.Player, scale), playerColor, -1)
	}
	if scene.Cursor != nil {
		gocv.Circle(&img, scale(scene.Cursor.X, scene.Cursor.Y), 8, cursorColor, 2)
	}

	if scene.Game {
		gocv.PutText(&img, "Score: "+strconv.Itoa(scene.Score), image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, textColor, 2)
	}
	if scene.Label != "" {
		gocv.PutText(&img, scene.Label, image.Pt(10, h-15), gocv.FontHersheySimplex, 0.6, textColor, 1)
	}
	if scene.GameOver {
		banner := image.Rect(w/4, h/2-40, w*3/4, h/2+40)
		gocv.Rectangle(&img, banner, bannerColor, -1)
		gocv.PutText(&img, "GAME OVER", image.Pt(w/4+20, h/2+15), gocv.FontHersheySimplex, 1.4, textColor, 3)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), g.config.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// canvas returns a Mat of the output size holding frame, or black when frame is nil.
func (g *GoCV) canvas(frame *gocv.Mat) (gocv.Mat, error) {
	if frame == nil || frame.Empty() {
		return gocv.NewMatWithSize(g.config.Height, g.config.Width, gocv.MatTypeCV8UC3), nil
	}
	if frame.Cols() == g.config.Width && frame.Rows() == g.config.Height {
		return frame.Clone(), nil
	}
	out := gocv.NewMat()
	gocv.Resize(*frame, &out, image.Pt(g.config.Width, g.config.Height), 0, 0, gocv.InterpolationLinear)
	if out.Empty() {
		out.Close()
		return gocv.Mat{}, errors.New("resize frame")
	}
	return out, nil
}

func (g *GoCV) Close() error { return nil }

func rect(r game.Rect, scale func(x, y float64) image.Point) image.Rectangle {
	return image.Rectangle{Min: scale(r.X, r.Y), Max: scale(r.X+r.W, r.Y+r.H)}
}
