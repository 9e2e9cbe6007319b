package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iamvishnuk/poll-server/internal/broadcast"
	"github.com/iamvishnuk/poll-server/internal/domain"
	apperrors "github.com/iamvishnuk/poll-server/internal/errors"
	"github.com/iamvishnuk/poll-server/internal/metrics"
)

// Inbound control message types.
const (
	controlSubscribe   = "subscribe"
	controlUnsubscribe = "unsubscribe"
	controlPing        = "ping"
)

type controlMessage struct {
	Type   string `json:"type"`
	PollID string `json:"poll_id"`
}

// handleGlobalWebsocket serves the global feed. Connections start
// unsubscribed and receive new_poll / poll_deleted announcements; they can
// attach to a poll with a subscribe control message.
func (s *Server) handleGlobalWebsocket(c echo.Context) error {
	return s.serveWebsocket(c, uuid.Nil)
}

// handlePollWebsocket serves the per-poll feed. The connection is subscribed
// immediately and the current poll state is the first frame it receives.
func (s *Server) handlePollWebsocket(c echo.Context) error {
	pollID, err := uuid.Parse(c.Param("poll_id"))
	if err != nil {
		return apperrors.ValidationError("invalid poll id")
	}
	return s.serveWebsocket(c, pollID)
}

func (s *Server) serveWebsocket(c echo.Context, pollID uuid.UUID) error {
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("WebSocket connection rejected", "remote_ip", ip, "reason", string(reason))
		return c.JSON(http.StatusTooManyRequests, apiResponse{
			Status:  "error",
			Message: "connection limit exceeded",
		})
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote its HTTP error response.
		slog.Warn("WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	connectionID, err := s.registry.Register(conn)
	if err != nil {
		// Registry closed the connection on rejection.
		slog.Warn("WebSocket registration failed", "remote_ip", ip, "error", err)
		return nil
	}

	ctx := c.Request().Context()

	if pollID != uuid.Nil {
		s.subscribeWithSnapshot(ctx, connectionID, pollID)
	}

	s.readPump(ctx, conn, connectionID)

	s.registry.Deregister(connectionID)
	return nil
}

// subscribeWithSnapshot attaches the connection to pollID, seeding it with
// the current poll state. Concurrent subscriptions to the same poll share a
// single snapshot read. Unknown polls still get a subscription so the
// connection keeps working if the poll appears later; it just receives no
// snapshot.
func (s *Server) subscribeWithSnapshot(ctx context.Context, connectionID, pollID uuid.UUID) {
	v, err, _ := s.snapshotGroup.Do(pollID.String(), func() (any, error) {
		return s.polls.GetPoll(ctx, pollID)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPollNotFound) {
			slog.Warn("Failed to load poll snapshot for subscription",
				"poll_id", pollID.String(),
				"connection_id", connectionID.String(),
				"error", err)
		}
		s.registry.Subscribe(connectionID, pollID, nil)
		return
	}
	s.registry.Subscribe(connectionID, pollID, v.(*domain.Poll))
}

// readPump blocks on the connection until it closes, dispatching inbound
// control messages. Read failures are permanent, so any error ends the pump.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, connectionID uuid.UUID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read ended", "connection_id", connectionID.String(), "error", err)
			}
			return
		}
		s.handleControlMessage(ctx, connectionID, data)
	}
}

// handleControlMessage processes one inbound frame. Malformed or unknown
// messages are ignored; only an invalid poll_id in a subscribe gets an error
// frame back.
func (s *Server) handleControlMessage(ctx context.Context, connectionID uuid.UUID, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case controlPing:
		payload, err := broadcast.PongPayload()
		if err != nil {
			return
		}
		s.registry.Send(connectionID, payload)

	case controlSubscribe:
		pollID, err := uuid.Parse(msg.PollID)
		if err != nil {
			s.sendError(connectionID, "invalid poll id")
			return
		}
		s.subscribeWithSnapshot(ctx, connectionID, pollID)

	case controlUnsubscribe:
		s.registry.Unsubscribe(connectionID)
	}
}

func (s *Server) sendError(connectionID uuid.UUID, message string) {
	payload, err := broadcast.ErrorPayload(message)
	if err != nil {
		return
	}
	s.registry.Send(connectionID, payload)
}
