package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair registers the server side of a websocket connection under driverID
// and returns the client side.
func wsPair(t *testing.T, reg *WSRegistry, driverID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		reg.Add(driverID, conn)
		close(registered)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not registered")
	}
	return client
}

func TestWSRegistryNotify(t *testing.T) {
	reg := NewWSRegistry(nil)
	client := wsPair(t, reg, "drv-1")
	assert.True(t, reg.Connected("drv-1"))

	err := reg.Notify("drv-1", Notification{Type: "booking.requested", Payload: map[string]any{"route_id": "r1"}})
	require.NoError(t, err)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Notification
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, "booking.requested", got.Type)
	assert.Equal(t, "r1", got.Payload.(map[string]any)["route_id"])
	assert.False(t, got.SentAt.IsZero())
}

func TestWSRegistryNoSession(t *testing.T) {
	reg := NewWSRegistry(nil)
	err := reg.Notify("nobody", Notification{Type: "x"})
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestWSRegistryRemoveIgnoresStaleConn(t *testing.T) {
	reg := NewWSRegistry(nil)
	wsPair(t, reg, "drv-1")

	reg.mu.RLock()
	current := reg.sessions["drv-1"].conn
	reg.mu.RUnlock()

	reg.Remove("drv-1", &websocket.Conn{})
	assert.True(t, reg.Connected("drv-1"))

	reg.Remove("drv-1", current)
	assert.False(t, reg.Connected("drv-1"))
}

func TestPushDispatcherFallsBackToEndpoint(t *testing.T) {
	var body map[string]any
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gateway.Close()

	p := NewPushDispatcher(gateway.URL, NewWSRegistry(nil))
	require.NoError(t, p.Notify("drv-2", Notification{Type: "booking.requested"}))
	assert.Equal(t, "drv-2", body["driver_id"])
	assert.Equal(t, "booking.requested", body["notification"].(map[string]any)["type"])
}

func TestPushDispatcherGatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer gateway.Close()

	p := NewPushDispatcher(gateway.URL, nil)
	err := p.Notify("drv-2", Notification{Type: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPushDispatcherWithoutEndpoint(t *testing.T) {
	p := NewPushDispatcher("", NewWSRegistry(nil))
	assert.True(t, errors.Is(p.Notify("drv-3", Notification{Type: "x"}), ErrNoSession))
}
