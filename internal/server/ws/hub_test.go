package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus feeds a pre-made channel to the hub's subscription.
type fakeBus struct {
	ch chan []byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func startHub(t *testing.T) (*fakeBus, *httptest.Server) {
	t.Helper()

	bus := &fakeBus{ch: make(chan []byte, 16)}
	hub := NewHub(bus, "orders:*", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func event(t *testing.T, orderID, status string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"order_id": orderID,
		"status":   status,
		"payload":  map[string]any{"status": status, "attempt": 1},
	})
	require.NoError(t, err)
	return data
}

func TestHubSendsWelcomeOnConnect(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "")

	msg := readJSON(t, conn, 2*time.Second)
	assert.Equal(t, "connected", msg["type"])
}

func TestHubBroadcastsToAllByDefault(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")
	readJSON(t, conn, 2*time.Second) // welcome

	require.NoError(t, bus.Publish(context.Background(), "orders:ord-1", event(t, "ord-1", "routing")))

	msg := readJSON(t, conn, 2*time.Second)
	assert.Equal(t, "ord-1", msg["order_id"])
	assert.Equal(t, "routing", msg["status"])
}

func TestHubFiltersByWatchedOrder(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?order_id=ord-2")
	readJSON(t, conn, 2*time.Second) // welcome

	// An event for a different order must not be delivered.
	require.NoError(t, bus.Publish(context.Background(), "orders:ord-1", event(t, "ord-1", "routing")))
	// The watched order's event follows and must arrive first and only.
	require.NoError(t, bus.Publish(context.Background(), "orders:ord-2", event(t, "ord-2", "confirmed")))

	msg := readJSON(t, conn, 2*time.Second)
	assert.Equal(t, "ord-2", msg["order_id"])
}

func TestHubWatchControlMessage(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?order_id=ord-1")
	readJSON(t, conn, 2*time.Second) // welcome

	require.NoError(t, conn.WriteJSON(map[string][]string{"watch": {"ord-3"}}))

	// Give the read pump a moment to apply the watch update.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "orders:ord-3", event(t, "ord-3", "submitted")))
	msg := readJSON(t, conn, 2*time.Second)
	assert.Equal(t, "ord-3", msg["order_id"])
}

func TestHubIgnoresMalformedEnvelopes(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")
	readJSON(t, conn, 2*time.Second) // welcome

	require.NoError(t, bus.Publish(context.Background(), "orders:x", []byte("not json")))
	require.NoError(t, bus.Publish(context.Background(), "orders:ord-9", event(t, "ord-9", "failed")))

	msg := readJSON(t, conn, 2*time.Second)
	assert.Equal(t, "ord-9", msg["order_id"])
}
