package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestNewHub(t *testing.T) {
	hub := NewHub("")
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestOriginHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"http://localhost:3000", "localhost:3000"},
		{"https://dash.example.com", "dash.example.com"},
		{"*.example.com", "*.example.com"},
	}
	for _, tt := range tests {
		if got := originHost(tt.in); got != tt.want {
			t.Errorf("originHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub("")

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub("")

	// A channel cannot be marshaled to JSON; the hub logs and returns.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub("")

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{ws: nil, cancel: cancel})
}

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub("")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastEvent(ctx, "hook", map[string]string{"id": "collaboration-1"})

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "hook" {
		t.Errorf("type = %q, want hook", msg.Type)
	}
	if !strings.Contains(string(msg.Payload), "collaboration-1") {
		t.Errorf("unexpected payload %s", msg.Payload)
	}

	hub.Close()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected no connections after Close, got %d", hub.ConnectionCount())
	}
}
