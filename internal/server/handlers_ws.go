package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/feed"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/metrics"
)

// Inbound control messages are rate limited per connection. Filter changes
// and replays are operator actions, so the budget is small.
const (
	controlMessageRate  = 5
	controlMessageBurst = 10
)

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WebsocketRejections.WithLabelValues(string(reason)).Inc()
		slog.Warn("Rejected websocket connection", "ip", ip, "reason", reason)
		return c.String(http.StatusTooManyRequests, "connection limit reached")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origin.check,
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.limits.Release(ip)
		metrics.WebsocketRejections.WithLabelValues("upgrade_failed").Inc()
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	handle, err := s.broadcaster.Register(conn)
	if err != nil {
		s.limits.Release(ip)
		_ = conn.Close()
		slog.Error("Failed to register subscriber", "ip", ip, "error", err)
		return nil
	}

	defer func() {
		s.broadcaster.Unregister(handle)
		s.limits.Release(ip)
		s.announceStats()
	}()

	_ = s.broadcaster.Send(handle, domain.StatusMessage{
		Type:          domain.MessageTypeConnection,
		Message:       "connected",
		FeedConnected: s.feed.State() == feed.StateListening,
	})
	s.announceStats()

	// Read pump. Blocks until the connection closes.
	limiter := rate.NewLimiter(controlMessageRate, controlMessageBurst)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if !limiter.Allow() {
			_ = s.broadcaster.Send(handle, domain.CommandResponse{
				Type:    domain.MessageTypeCommandResponse,
				Status:  "error",
				Message: "too many commands",
			})
			continue
		}
		s.handleControlMessage(handle, data)
	}

	return nil
}

func (s *Server) announceStats() {
	s.broadcaster.Announce(domain.StatsMessage{
		Type:        domain.MessageTypeStats,
		Subscribers: s.broadcaster.Count(),
	})
}

func (s *Server) handleControlMessage(handle uuid.UUID, data []byte) {
	var msg domain.ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = s.broadcaster.Send(handle, domain.CommandResponse{
			Type:    domain.MessageTypeCommandResponse,
			Status:  "error",
			Message: "malformed command",
		})
		return
	}
	if msg.Type != domain.ControlTypeCommand {
		return
	}

	switch msg.Action {
	case domain.ActionSetFilter:
		if err := s.broadcaster.UpdateFilter(handle, msg.Enabled, msg.Groups); err != nil {
			slog.Warn("Filter update failed", "subscriber_id", handle, "error", err)
			return
		}
		_ = s.broadcaster.Send(handle, domain.CommandResponse{
			Type:   domain.MessageTypeCommandResponse,
			Action: domain.ActionSetFilter,
			Status: "ok",
			Groups: msg.Groups,
		})

	case domain.ActionReplay:
		filter, err := s.broadcaster.Filter(handle)
		if err != nil {
			return
		}
		events := s.window.Snapshot(filter)
		for _, ev := range events {
			if err := s.broadcaster.Send(handle, ev); err != nil {
				return
			}
		}
		_ = s.broadcaster.Send(handle, domain.CommandResponse{
			Type:    domain.MessageTypeCommandResponse,
			Action:  domain.ActionReplay,
			Status:  "ok",
			Message: fmt.Sprintf("replayed %d events", len(events)),
		})

	default:
		_ = s.broadcaster.Send(handle, domain.CommandResponse{
			Type:    domain.MessageTypeCommandResponse,
			Action:  msg.Action,
			Status:  "error",
			Message: "unknown action",
		})
	}
}
