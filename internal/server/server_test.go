package server

import (
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/actuate"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/perception"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/session"
)

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	// Create a temporary directory with a static file
	tmpDir, err := os.MkdirTemp("", "mudra-server-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	// Create a test HTML file
	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Create a CSS file for testing direct file access
	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	t.Run("root path returns 404 when no static dir configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}

func TestServer_HealthWithSession(t *testing.T) {
	c := newTestController(t, endless)
	s := New(Config{Controller: c})

	health := func() map[string]any {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		var response map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return response
	}

	if got := health(); got["program"] != nil {
		t.Errorf("expected no program before start, got %v", got["program"])
	}

	if _, err := c.Start(context.Background(), "eye_tracking_game", false); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	got := health()
	if got["program"] != "eye_tracking_game" {
		t.Errorf("program = %v, want eye_tracking_game", got["program"])
	}
	if got["state"] != "running" {
		t.Errorf("state = %v, want running", got["state"])
	}
	if _, ok := got["score"]; !ok {
		t.Error("expected score for a game program")
	}
}

func TestServer_CORS(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodOptions, "/api/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("Access-Control-Allow-Methods = %q, want POST allowed", got)
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/start", "/api/sessions", "/api/calibration/eye_tracking_game", "/api/stream", "/ws/tracking"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d without dependencies, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Stream(t *testing.T) {
	frames := NewFrameHub()
	frames.Publish(pipeline.Frame{Seq: 1, JPEG: []byte("first")})

	ts := httptest.NewServer(New(Config{Frames: frames}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("ParseMediaType() error = %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] != "frame" {
		t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	parts := multipart.NewReader(resp.Body, params["boundary"])
	readPart := func() string {
		t.Helper()
		part, err := parts.NextPart()
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		if got := part.Header.Get("Content-Type"); got != "image/jpeg" {
			t.Errorf("part Content-Type = %q, want image/jpeg", got)
		}
		body, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		return string(body)
	}

	if got := readPart(); got != "first" {
		t.Errorf("first part = %q, want the last published frame", got)
	}

	waitFor(t, func() bool { return frames.Clients() == 1 })
	frames.Publish(pipeline.Frame{Seq: 2, JPEG: []byte("second")})
	if got := readPart(); got != "second" {
		t.Errorf("second part = %q, want second", got)
	}
}

func TestServer_Tracking(t *testing.T) {
	events := NewEventHub()
	ts := httptest.NewServer(New(Config{Events: events}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tracking"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return events.Clients() == 1 })
	events.Publish(session.Event{
		Session:   "sess-1",
		Program:   session.HandGame,
		TickEvent: pipeline.TickEvent{Seq: 4, Tracked: true, Gesture: "pointer_move", Score: 3},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got["session"] != "sess-1" || got["program"] != "hand_tracking_game" {
		t.Errorf("event = %v", got)
	}
	if got["gesture"] != "pointer_move" || got["score"] != float64(3) {
		t.Errorf("event = %v, want flattened tick fields", got)
	}

	conn.Close()
	waitFor(t, func() bool { return events.Clients() == 0 })
}

// endless opens sources that idle for far longer than any test.
func endless(ctx context.Context, p session.Program) (perception.Source, error) {
	return perception.NewScriptedSource(p.Kind(), perception.Repeat(perception.Nothing(), 100_000)...), nil
}

func newTestController(t *testing.T, sources session.SourceFactory) *session.Controller {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.TickDelayMS = 1
	c := session.NewController(session.Options{
		Config:  cfg,
		Port:    actuate.NewRecorder(1280, 720),
		Sources: sources,
		Rand:    func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) },
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_StreamDisconnect(t *testing.T) {
	watch := func(t *testing.T, ts *httptest.Server, frames *FrameHub) {
		t.Helper()
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("GET /api/stream error = %v", err)
		}
		waitFor(t, func() bool { return frames.Clients() == 1 })
		cancel()
		resp.Body.Close()
		waitFor(t, func() bool { return frames.Clients() == 0 })
	}

	t.Run("last viewer leaving stops the session", func(t *testing.T) {
		c := newTestController(t, endless)
		frames := NewFrameHub()
		ts := httptest.NewServer(New(Config{Controller: c, Frames: frames, Settings: config.Default()}))
		defer ts.Close()

		s, err := c.Start(context.Background(), "eye_tracking_game", false)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		watch(t, ts, frames)

		waitFor(t, func() bool { return s.State() == pipeline.Stopped })
		if _, ok := c.Current(); ok {
			t.Error("expected no current program after the stream closed")
		}
		if got := s.Stats().Reason; got != pipeline.ReasonTerminated {
			t.Errorf("Reason = %q, want terminated", got)
		}
	})

	t.Run("disabled keeps the session running", func(t *testing.T) {
		c := newTestController(t, endless)
		frames := NewFrameHub()
		settings := config.Default()
		settings.Server.StopOnDisconnect = false
		ts := httptest.NewServer(New(Config{Controller: c, Frames: frames, Settings: settings}))
		defer ts.Close()

		if _, err := c.Start(context.Background(), "eye_tracking_game", false); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		watch(t, ts, frames)

		if c.Active() == nil {
			t.Error("session should keep running when stop on disconnect is off")
		}
	})
}
