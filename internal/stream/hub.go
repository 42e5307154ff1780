// Package stream fans timing events out to websocket subscribers. The
// browser overlay and the voice-cue player both listen here rather than
// polling the status endpoint.
package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/strideworks/sprintgate/internal/timing"
)

// Hub tracks connected websocket clients and broadcasts session events to
// all of them. Slow clients are dropped rather than allowed to stall the
// session pipeline.
type Hub struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex

	upgrader websocket.Upgrader
}

// Client is one websocket subscriber. Send is buffered; a full buffer means
// the broadcast for that client is skipped.
type Client struct {
	Send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: map[*Client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Overlay pages are served from file:// or another port
			// during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) Register() *Client {
	client := &Client{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish serialises a timing event and broadcasts it. Safe to hand to a
// session as its event sink.
func (h *Hub) Publish(ev timing.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("stream: marshal event: %v", err)
		return
	}
	h.Broadcast(payload)
}

func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams broadcasts until
// the peer disconnects. Inbound messages are read and discarded to service
// control frames.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream: upgrade: %v", err)
		return
	}
	defer conn.Close()

	client := h.Register()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	// Closing Send unblocks the writer so the handler can return.
	h.Unregister(client)
	<-done
}
