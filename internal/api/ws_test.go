package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wsFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func newWSTestServer(t *testing.T) (*Server, *bus.Bus, *httptest.Server) {
	t.Helper()
	b, err := bus.New(bus.Config{})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	s, err := NewServer(&stubStore{}, &stubOrch{}, &stubQuant{}, &stubRiskCtl{}, b,
		config.TradingConfig{Symbols: []string{"BTCUSDT"}},
		config.APIConfig{Addr: ":0"})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, b, ts
}

func TestWSSendsHelloOnConnect(t *testing.T) {
	_, _, ts := newWSTestServer(t)
	conn := dialWS(t, ts)

	frame := readFrame(t, conn)
	assert.Equal(t, "connected", frame.Type)
}

func TestWSForwardsBusEvents(t *testing.T) {
	_, b, ts := newWSTestServer(t)
	conn := dialWS(t, ts)

	// hello frame first
	hello := readFrame(t, conn)
	require.Equal(t, "connected", hello.Type)

	require.NoError(t, b.Broadcast("risk_sentinel", "risk.kill_switch", map[string]any{
		"active": true,
		"reason": "Max drawdown exceeded: -12.00%",
	}))
	require.NoError(t, b.Flush())

	frame := readFrame(t, conn)
	assert.Equal(t, "agent:risk.kill_switch", frame.Type)

	data, ok := frame.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "risk_sentinel", data["sender"])
	assert.Equal(t, "risk.kill_switch", data["topic"])

	payload, ok := data["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, payload["active"])
}

func TestWSFanOutToMultipleClients(t *testing.T) {
	_, b, ts := newWSTestServer(t)

	first := dialWS(t, ts)
	second := dialWS(t, ts)
	require.Equal(t, "connected", readFrame(t, first).Type)
	require.Equal(t, "connected", readFrame(t, second).Type)

	require.NoError(t, b.Broadcast("orchestrator", "signal.approved", map[string]any{
		"symbol": "BTCUSDT",
	}))
	require.NoError(t, b.Flush())

	assert.Equal(t, "agent:signal.approved", readFrame(t, first).Type)
	assert.Equal(t, "agent:signal.approved", readFrame(t, second).Type)
}

func TestHubCountsClients(t *testing.T) {
	s, _, ts := newWSTestServer(t)

	conn := dialWS(t, ts)
	require.Equal(t, "connected", readFrame(t, conn).Type)

	require.Eventually(t, func() bool {
		return s.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return s.hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
