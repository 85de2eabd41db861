package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// idleShutdown is how long the landmark service may sit unused before it is stopped.
const idleShutdown = 30 * time.Second

// serviceScript is the landmark service shipped next to the binary.
const serviceScript = "scripts/mediapipe_service.py"

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
// Frames are sent as length-prefixed JPEG; the service answers with one JSON
// line. The service starts on first use, stops after idleShutdown without
// frames and is restarted after a broken exchange.
type MediaPipeDetector struct {
	config Config
	script string

	mu        sync.Mutex
	svc       *service
	idleTimer *time.Timer
}

// service is one running landmark subprocess.
type service struct {
	cmd *exec.Cmd
	in  *bufio.Writer
	raw io.WriteCloser
	out *bufio.Reader
}

// NewMediaPipeDetector creates a new MediaPipe detector. It fails when the
// landmark mode is unknown or the service script cannot be found.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if config.Mode.Size() == 0 {
		return nil, fmt.Errorf("unknown landmark mode %q", config.Mode)
	}
	script := locate(searchPaths(serviceScript, "..")...)
	if script == "" {
		return nil, errors.New("mediapipe_service.py not found")
	}
	return &MediaPipeDetector{config: config, script: script}, nil
}

// Detect sends frame to the service and returns the subjects it found,
// best score first.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]Landmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.svc == nil {
		if d.svc, err = d.start(); err != nil {
			return nil, err
		}
	}

	line, err := d.svc.exchange(buf.GetBytes())
	if err != nil {
		// The service is in an unknown state; the next frame starts a fresh one.
		d.stop()
		return nil, err
	}
	d.touch()

	return parseResponse(line, d.config.Mode)
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *MediaPipeDetector) start() (*service, error) {
	python := locate(searchPaths("venv/bin/python", "..", "../..")...)
	if python == "" {
		python = "python3"
	}

	cmd := exec.Command(python, append([]string{d.script}, d.args()...)...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mediapipe service: %w", err)
	}
	log.Printf("detector: started %s landmark service (pid %d)", d.config.Mode, cmd.Process.Pid)

	return &service{
		cmd: cmd,
		in:  bufio.NewWriter(stdin),
		raw: stdin,
		out: bufio.NewReader(stdout),
	}, nil
}

// exchange writes one length-prefixed frame and reads the reply line.
func (s *service) exchange(jpeg []byte) ([]byte, error) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(jpeg)))
	if _, err := s.in.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write frame header: %w", err)
	}
	if _, err := s.in.Write(jpeg); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	if err := s.in.Flush(); err != nil {
		return nil, fmt.Errorf("flush frame: %w", err)
	}

	line, err := s.out.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// args builds the service command line from the detector config.
func (d *MediaPipeDetector) args() []string {
	maxSubjects := d.config.MaxSubjects
	if maxSubjects <= 0 {
		maxSubjects = 1
	}
	args := []string{
		"--mode", string(d.config.Mode),
		"--max", strconv.Itoa(maxSubjects),
		"--min-detection", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
		"--min-tracking", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
	}
	if d.config.Mode == KindFace && d.config.RefineLandmarks {
		args = append(args, "--refine")
	}
	return args
}

// stop ends the running service, if any. Callers hold d.mu.
func (d *MediaPipeDetector) stop() error {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.svc == nil {
		return nil
	}
	svc := d.svc
	d.svc = nil

	svc.raw.Close()
	return svc.cmd.Wait()
}

// touch restarts the idle countdown. Callers hold d.mu.
func (d *MediaPipeDetector) touch() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.stop(); err != nil {
			log.Printf("detector: idle shutdown: %v", err)
		}
	})
}

// searchPaths expands rel against the working directory, the given parent
// directories, the executable's directory and ~/.mudra.
func searchPaths(rel string, parents ...string) []string {
	paths := []string{rel}
	for _, p := range parents {
		paths = append(paths, filepath.Join(p, rel))
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".mudra", rel))
	}
	return paths
}

// locate returns the absolute form of the first existing path, or "".
func locate(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

// jsonSubject represents one hand or face in the service response.
type jsonSubject struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

// parseResponse decodes one service line. Hands arrive under "hands", faces
// under "faces". Subjects with fewer points than the mode needs, such as a
// face without iris refinement, are skipped.
func parseResponse(line []byte, mode Kind) ([]Landmarks, error) {
	var response struct {
		Hands []jsonSubject `json:"hands"`
		Faces []jsonSubject `json:"faces"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	subjects := response.Hands
	if mode == KindFace {
		subjects = response.Faces
	}

	n := mode.Size()
	result := make([]Landmarks, 0, len(subjects))
	for _, s := range subjects {
		if len(s.Points) < n {
			continue
		}
		result = append(result, Landmarks{
			Kind:       mode,
			Points:     append([]Point3D(nil), s.Points[:n]...),
			Handedness: s.Handedness,
			Score:      s.Score,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return result, nil
}
