package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tiltbot/internal/sim"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsFrames(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.TelemetryHandler())
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })

	hub.Render(sim.Frame{Tick: 3, Command: sim.Forward, Position: sim.Vec{X: 400, Y: 299.4}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.BinaryMessage {
		t.Fatalf("expected binary message, got %d", typ)
	}
	frame, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Tick != 3 || frame.Command != sim.Forward || frame.Position.Y != 299.4 {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestControlHandlerSetsCommand(t *testing.T) {
	store := sim.NewStore()
	hub := NewHub(store, nil)
	srv := httptest.NewServer(hub.ControlHandler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("R")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "text command", func() bool { return store.Get() == sim.Right })

	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeControl("F")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "binary command", func() bool { return store.Get() == sim.Forward })

	if err := conn.WriteMessage(websocket.TextMessage, []byte("jump")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "unknown command to stop", func() bool { return store.Get() == sim.Stop })
}

func TestTelemetryHandlerIgnoresCommands(t *testing.T) {
	store := sim.NewStore()
	store.Set(sim.Left)
	hub := NewHub(store, nil)
	srv := httptest.NewServer(hub.TelemetryHandler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("R")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := store.Get(); got != sim.Left {
		t.Fatalf("expected telemetry stream to be read-only, got %v", got)
	}
}

func TestHubCloseDisconnects(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.TelemetryHandler())
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, "client registration", func() bool { return hub.Clients() == 1 })
	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close")
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients, got %d", hub.Clients())
	}
}
