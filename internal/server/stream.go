package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/ayusman/mudra/internal/pipeline"
)

// FrameHub distributes encoded pipeline frames to MJPEG clients.
type FrameHub struct {
	hub *hub[pipeline.Frame]

	mu   sync.Mutex
	last pipeline.Frame
}

// NewFrameHub creates an empty FrameHub.
func NewFrameHub() *FrameHub {
	return &FrameHub{hub: newHub[pipeline.Frame](1)}
}

// Publish sends f to every connected client. It never blocks.
func (h *FrameHub) Publish(f pipeline.Frame) {
	h.mu.Lock()
	h.last = f
	h.mu.Unlock()
	h.hub.publish(f)
}

// Last returns the most recent frame, if any.
func (h *FrameHub) Last() (pipeline.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.last.JPEG != nil
}

// Clients returns the number of connected stream clients.
func (h *FrameHub) Clients() int {
	return h.hub.len()
}

// StreamHandler serves the annotated frames as MJPEG.
type StreamHandler struct {
	frames *FrameHub
	onIdle func()
}

// NewStreamHandler creates a new StreamHandler over frames. onIdle, when
// not nil, runs each time the last client disconnects.
func NewStreamHandler(frames *FrameHub, onIdle func()) *StreamHandler {
	return &StreamHandler{frames: frames, onIdle: onIdle}
}

// ServeHTTP streams MJPEG frames to the client until it disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames, unsubscribe := h.frames.hub.subscribe()
	defer func() {
		unsubscribe()
		if h.onIdle != nil && h.frames.Clients() == 0 {
			h.onIdle()
		}
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	if f, ok := h.frames.Last(); ok {
		if writePart(w, f) != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-frames:
			if writePart(w, f) != nil {
				return
			}
		}
	}
}

func writePart(w http.ResponseWriter, f pipeline.Frame) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f.JPEG)); err != nil {
		return err
	}
	if _, err := w.Write(f.JPEG); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
