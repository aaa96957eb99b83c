package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/config"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
)

func dialWS(t *testing.T, h *testHarness, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := strings.Replace(h.ts.URL, "http", "ws", 1) + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

// readEnvelope reads messages until one with the wanted type arrives.
// Interleaved stats announcements are skipped.
func readEnvelope(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == wantType {
			return msg
		}
	}
}

func TestWebSocket_HelloOnConnect(t *testing.T) {
	h := newTestHarness(t)

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEnvelope(t, conn, domain.MessageTypeConnection)
	assert.Equal(t, "connected", hello["message"])
	assert.Equal(t, true, hello["feed_connected"])

	stats := readEnvelope(t, conn, domain.MessageTypeStats)
	assert.Equal(t, float64(1), stats["connections"])
}

func TestWebSocket_SetFilterAcknowledged(t *testing.T) {
	h := newTestHarness(t)

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)

	require.NoError(t, conn.WriteJSON(domain.ControlMessage{
		Type:    domain.ControlTypeCommand,
		Action:  domain.ActionSetFilter,
		Enabled: true,
		Groups:  []string{"12345"},
	}))

	resp := readEnvelope(t, conn, domain.MessageTypeCommandResponse)
	assert.Equal(t, domain.ActionSetFilter, resp["action"])
	assert.Equal(t, "ok", resp["status"])
}

func TestWebSocket_ReplayDeliversFilteredHistory(t *testing.T) {
	h := newTestHarness(t)
	h.window.Append(domain.DisplayEvent{Type: domain.MessageTypeDanmaku, EventID: 1, GroupID: "12345", Content: "keep"})
	h.window.Append(domain.DisplayEvent{Type: domain.MessageTypeDanmaku, EventID: 2, GroupID: "67890", Content: "skip"})

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)

	require.NoError(t, conn.WriteJSON(domain.ControlMessage{
		Type:    domain.ControlTypeCommand,
		Action:  domain.ActionSetFilter,
		Enabled: true,
		Groups:  []string{"12345"},
	}))
	readEnvelope(t, conn, domain.MessageTypeCommandResponse)

	require.NoError(t, conn.WriteJSON(domain.ControlMessage{
		Type:   domain.ControlTypeCommand,
		Action: domain.ActionReplay,
	}))

	ev := readEnvelope(t, conn, domain.MessageTypeDanmaku)
	assert.Equal(t, "keep", ev["content"])

	resp := readEnvelope(t, conn, domain.MessageTypeCommandResponse)
	assert.Equal(t, domain.ActionReplay, resp["action"])
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp["message"], "replayed 1")
}

func TestWebSocket_UnknownActionRejected(t *testing.T) {
	h := newTestHarness(t)

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)

	require.NoError(t, conn.WriteJSON(domain.ControlMessage{
		Type:   domain.ControlTypeCommand,
		Action: "reboot",
	}))

	resp := readEnvelope(t, conn, domain.MessageTypeCommandResponse)
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "unknown action", resp["message"])
}

func TestWebSocket_PerIPLimit(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) {
		cfg.MaxConnectionsPerIP = 1
	})

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)

	_, resp, err := dialWS(t, h, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocket_GlobalLimit(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) {
		cfg.MaxWebSocketConnections = 1
	})

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)

	_, resp, err := dialWS(t, h, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocket_ForeignOriginRejected(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) {
		cfg.AppEnv = "production"
	})

	header := http.Header{}
	header.Set("Origin", "https://evil.example.net")

	_, resp, err := dialWS(t, h, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocket_ConfiguredOriginAllowed(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) {
		cfg.AppEnv = "production"
		cfg.AllowedOrigins = "https://panel.example.org"
	})

	header := http.Header{}
	header.Set("Origin", "https://panel.example.org")

	conn, _, err := dialWS(t, h, header)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)
}

func TestWebSocket_BroadcastRespectsFilter(t *testing.T) {
	h := newTestHarness(t)

	conn, _, err := dialWS(t, h, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEnvelope(t, conn, domain.MessageTypeConnection)

	require.NoError(t, conn.WriteJSON(domain.ControlMessage{
		Type:    domain.ControlTypeCommand,
		Action:  domain.ActionSetFilter,
		Enabled: true,
		Groups:  []string{"12345"},
	}))
	readEnvelope(t, conn, domain.MessageTypeCommandResponse)

	h.server.broadcaster.Broadcast(domain.DisplayEvent{
		Type: domain.MessageTypeDanmaku, EventID: 10, GroupID: "67890", Content: "filtered out",
	})
	h.server.broadcaster.Broadcast(domain.DisplayEvent{
		Type: domain.MessageTypeDanmaku, EventID: 11, GroupID: "12345", Content: "delivered",
	})

	ev := readEnvelope(t, conn, domain.MessageTypeDanmaku)
	assert.Equal(t, "delivered", ev["content"])
}
