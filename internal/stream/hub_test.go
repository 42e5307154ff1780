package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strideworks/sprintgate/internal/timing"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	client := hub.Register()
	defer hub.Unregister(client)

	hub.Broadcast([]byte("hello"))

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestHubUnregisterCloses(t *testing.T) {
	hub := NewHub()
	client := hub.Register()
	hub.Unregister(client)

	if _, ok := <-client.Send; ok {
		t.Fatal("expected channel closed")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", hub.ClientCount())
	}

	// Double unregister must be a no-op.
	hub.Unregister(client)
}

func TestHubSkipsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := hub.Register()
	defer hub.Unregister(slow)

	for i := 0; i < cap(slow.Send)+10; i++ {
		hub.Broadcast([]byte("tick"))
	}
	if len(slow.Send) != cap(slow.Send) {
		t.Fatalf("buffered %d messages, want %d", len(slow.Send), cap(slow.Send))
	}
}

func TestHubPublishSerialisesEvent(t *testing.T) {
	hub := NewHub()
	client := hub.Register()
	defer hub.Unregister(client)

	hub.Publish(timing.Event{Type: timing.EventStarted, SessionID: "abc", State: timing.StateRunning})

	select {
	case msg := <-client.Send:
		var ev timing.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != timing.EventStarted || ev.SessionID != "abc" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestHubWebsocketRoundTrip(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the server side to register the subscriber.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(timing.Event{Type: timing.EventFinished, SessionID: "ws-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev timing.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != timing.EventFinished {
		t.Fatalf("event type = %s, want finished", ev.Type)
	}
}
