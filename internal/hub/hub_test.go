package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TanssiDashboard/internal/store"
)

type pushed struct {
	Network string `json:"network"`
	Version uint64 `json:"version"`
	Error   string `json:"error"`
}

func encode(snap store.Snapshot) ([]byte, error) {
	return json.Marshal(pushed{Network: snap.Network, Version: snap.Version})
}

// viewers counts acquired viewers per network.
type viewers struct {
	mu     sync.Mutex
	counts map[string]int
}

func (v *viewers) acquire(network string) (store.Snapshot, error) {
	var snap store.Snapshot
	switch network {
	case "", "dancebox":
		snap = store.Snapshot{Network: "dancebox", Version: 1}
	case "flashbox":
		snap = store.Snapshot{Network: "flashbox", Version: 7}
	default:
		return store.Snapshot{}, errors.New("unknown network")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[snap.Network]++
	return snap, nil
}

func (v *viewers) release(network string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[network]--
}

func (v *viewers) count(network string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[network]
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	h, srv, _ := startCountingHub(t)
	return h, srv
}

func startCountingHub(t *testing.T) (*Hub, *httptest.Server, *viewers) {
	t.Helper()
	v := &viewers{counts: map[string]int{}}
	h := New(nil, encode)
	h.Acquire = v.acquire
	h.Release = v.release
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnect))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv, v
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) pushed {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg pushed
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_SendsCurrentSnapshotOnConnect(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "?network=flashbox")

	msg := next(t, conn)
	assert.Equal(t, "flashbox", msg.Network)
	assert.Equal(t, uint64(7), msg.Version)
}

func TestHub_DefaultNetwork(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "")
	assert.Equal(t, "dancebox", next(t, conn).Network)
}

func TestHub_PublishReachesOnlySameNetwork(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "?network=dancebox")
	next(t, conn)

	h.Publish(store.Snapshot{Network: "flashbox", Version: 100})
	h.Publish(store.Snapshot{Network: "dancebox", Version: 2})

	msg := next(t, conn)
	assert.Equal(t, "dancebox", msg.Network)
	assert.Equal(t, uint64(2), msg.Version)
}

func TestHub_SwitchNetwork(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "?network=dancebox")
	next(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"network": "flashbox"}))
	msg := next(t, conn)
	assert.Equal(t, "flashbox", msg.Network)
	require.Eventually(t, func() bool { return h.Clients()["flashbox"] == 1 }, time.Second, 5*time.Millisecond)

	h.Publish(store.Snapshot{Network: "dancebox", Version: 3})
	h.Publish(store.Snapshot{Network: "flashbox", Version: 8})
	assert.Equal(t, uint64(8), next(t, conn).Version)
}

func TestHub_SwitchToUnknownNetwork(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "?network=dancebox")
	next(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"network": "mainnet"}))
	assert.Equal(t, "unknown network", next(t, conn).Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.NotEmpty(t, next(t, conn).Error)

	assert.Equal(t, 1, h.Clients()["dancebox"])
}

func TestHub_UnknownNetworkOnConnect(t *testing.T) {
	_, srv := startHub(t)
	resp, err := http.Get(srv.URL + "/ws?network=mainnet")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "?network=dancebox")
	next(t, conn)
	require.Equal(t, 1, h.Clients()["dancebox"])

	conn.Close()
	require.Eventually(t, func() bool { return h.Clients()["dancebox"] == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ViewersFollowSwitchesAndDisconnects(t *testing.T) {
	_, srv, v := startCountingHub(t)
	conn := dial(t, srv, "?network=dancebox")
	next(t, conn)
	assert.Equal(t, 1, v.count("dancebox"))

	require.NoError(t, conn.WriteJSON(map[string]string{"network": "flashbox"}))
	assert.Equal(t, "flashbox", next(t, conn).Network)
	assert.Equal(t, 0, v.count("dancebox"))
	assert.Equal(t, 1, v.count("flashbox"))

	// a failed switch keeps the current network
	require.NoError(t, conn.WriteJSON(map[string]string{"network": "mainnet"}))
	assert.NotEmpty(t, next(t, conn).Error)
	assert.Equal(t, 1, v.count("flashbox"))

	conn.Close()
	require.Eventually(t, func() bool { return v.count("flashbox") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, v.count("dancebox"))
}

func TestHub_CheckOrigin(t *testing.T) {
	h := New([]string{"https://dash.example"}, encode)
	check := h.upgrader.CheckOrigin

	req := httptest.NewRequest(http.MethodGet, "http://dash.internal/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://dash.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://dash.internal")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
