package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/session"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventHub broadcasts tick events to tracking WebSocket clients.
type EventHub struct {
	hub *hub[[]byte]
}

// NewEventHub creates an empty EventHub.
func NewEventHub() *EventHub {
	return &EventHub{hub: newHub[[]byte](32)}
}

// Publish encodes ev and queues it for every client. It never blocks.
func (h *EventHub) Publish(ev session.Event) {
	if h.hub.len() == 0 {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("websocket: encode event: %v", err)
		return
	}
	h.hub.publish(msg)
}

// Clients returns the number of connected tracking clients.
func (h *EventHub) Clients() int {
	return h.hub.len()
}

// TrackingHandler upgrades to a WebSocket and relays tick events.
type TrackingHandler struct {
	events *EventHub
}

// NewTrackingHandler creates a TrackingHandler over events.
func NewTrackingHandler(events *EventHub) *TrackingHandler {
	return &TrackingHandler{events: events}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.events.hub.subscribe()
	defer unsubscribe()

	// Client messages are ignored; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
