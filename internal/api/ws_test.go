package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicegate/voicegate/internal/gateway"
)

func dialTestHub(t *testing.T, ctrl CallController) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(ctrl)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the hub to register the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() == 0 {
		t.Fatal("client never registered")
	}
	return hub, conn
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub, conn := dialTestHub(t, nil)

	hub.Broadcast(gateway.EventCallIncoming, map[string]any{"caller": "+4915112345678"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Type != gateway.EventCallIncoming {
		t.Errorf("type = %q, want %q", ev.Type, gateway.EventCallIncoming)
	}
	data, ok := ev.Data.(map[string]any)
	if !ok || data["caller"] != "+4915112345678" {
		t.Errorf("data = %v", ev.Data)
	}
}

func TestHubDispatchesCommands(t *testing.T) {
	ctrl := &fakeController{}
	_, conn := dialTestHub(t, ctrl)

	if err := conn.WriteJSON(wsCommand{Type: "hangup"}); err != nil {
		t.Fatalf("sending command: %v", err)
	}
	if err := conn.WriteJSON(wsCommand{Type: "switch_agent", Agent: "ideas"}); err != nil {
		t.Fatalf("sending command: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.hangupCount() > 0 && func() string {
			ctrl.mu.Lock()
			defer ctrl.mu.Unlock()
			return ctrl.switched
		}() == "ideas" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("commands not dispatched: hangups=%d switched=%q", ctrl.hangupCount(), ctrl.switched)
}

func TestHubRemovesClosedClients(t *testing.T) {
	hub, conn := dialTestHub(t, nil)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("clients = %d after close, want 0", n)
	}
}
