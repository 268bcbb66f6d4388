package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/events"
	"github.com/quillgame/quill/backend/go/internal/v1/game"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/metrics"
	"github.com/quillgame/quill/backend/go/internal/v1/realtime"
	"github.com/quillgame/quill/backend/go/internal/v1/users"
)

// wsCloseWait caps how long a close frame write may take.
const wsCloseWait = 10 * time.Second

// wsAuthFrame is the first client frame on a fresh socket.
type wsAuthFrame struct {
	Authorization string `json:"Authorization"`
}

// serveWs runs a member's connection from upgrade to disconnect.
//
// The order is fixed: upgrade, resolve the room, authenticate with the
// first frame, join. Rejections close the socket with a policy violation so
// clients can tell a refusal from a network failure. After the join the
// connection is two tasks: this goroutine reads, the relay writes.
func (s *Server) serveWs(c *gin.Context) {
	if !s.limiter.AllowWebSocket(c) {
		return
	}

	roomID := c.Param("id")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := context.WithValue(c.Request.Context(), logging.RoomIDKey, roomID)

	room, err := game.Load(ctx, s.bus.Client(), roomID)
	if errors.Is(err, game.ErrRoomNotFound) {
		closeWithPolicy(conn, "Room not found")
		return
	}
	if err != nil {
		logging.Error(ctx, "failed to read room", zap.Error(err))
		closeWithReason(conn, websocket.CloseInternalServerErr, "Internal server error")
		return
	}

	member, ok := s.authenticateSocket(ctx, conn)
	if !ok {
		return
	}
	ctx = context.WithValue(ctx, logging.UserIDKey, member.UserID.String())

	if err := room.Join(ctx, member); err != nil {
		code, reason := joinRejection(err)
		closeWithReason(conn, code, reason)
		return
	}
	metrics.RoomMembers.WithLabelValues(room.RoomID).Inc()
	metrics.IncConnection()
	defer metrics.DecConnection()

	b := realtime.NewBroadcaster(conn, s.bus, room, member, s.loop.MaxReceiveRetries)
	b.StartRelay(s.registry)

	if err := b.Join(ctx); err != nil {
		logging.Error(ctx, "failed to announce member join", zap.Error(err))
	} else {
		s.readLoop(ctx, conn, room, b)
	}

	// Disconnect: drop out of the member list first so the departure is
	// published against the updated room.
	if err := room.Leave(ctx, member); err != nil {
		logging.Error(ctx, "failed to remove member from room", zap.Error(err))
	}
	metrics.RoomMembers.WithLabelValues(room.RoomID).Dec()
	if err := b.Leave(ctx); err != nil {
		logging.Error(ctx, "failed to announce member leave", zap.Error(err))
		// The relay will never see the goodbye; close the socket directly.
		_ = conn.Close()
	}
	b.Wait()
}

// authenticateSocket reads the first frame and resolves it to a member. On
// failure the socket is closed and ok is false.
func (s *Server) authenticateSocket(ctx context.Context, conn *websocket.Conn) (game.Member, bool) {
	var frame wsAuthFrame
	if err := conn.ReadJSON(&frame); err != nil {
		closeWithPolicy(conn, "Not authenticated")
		return game.Member{}, false
	}
	token, ok := auth.BearerToken(frame.Authorization)
	if !ok {
		closeWithPolicy(conn, "Not authenticated")
		return game.Member{}, false
	}

	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		logging.Error(ctx, "session lookup failed", zap.Error(err))
		closeWithReason(conn, websocket.CloseInternalServerErr, "Internal server error")
		return game.Member{}, false
	}
	if sess == nil {
		closeWithPolicy(conn, "Could not validate credentials")
		return game.Member{}, false
	}

	user, err := s.users.ByID(ctx, sess.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		closeWithPolicy(conn, "Could not validate credentials")
		return game.Member{}, false
	}
	if err != nil {
		logging.Error(ctx, "user lookup failed", zap.Error(err))
		closeWithReason(conn, websocket.CloseInternalServerErr, "Internal server error")
		return game.Member{}, false
	}
	return user.Member(), true
}

// readLoop drains inbound frames until the client goes away. Every frame
// runs through the processor; ERROR results go back to the sender alone,
// everything else is published to the room.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, room *game.Room, b *realtime.Broadcaster) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn(ctx, "socket closed unexpectedly", zap.Error(err))
			}
			return
		}

		started := time.Now()
		event, err := events.Process(ctx, raw, room, b.Member())
		if err != nil {
			if errors.Is(err, events.ErrMalformedMessage) {
				metrics.WebsocketEvents.WithLabelValues("unknown", "malformed").Inc()
				if err := b.SendPersonal(events.NewError(err.Error())); err != nil {
					return
				}
				continue
			}
			logging.Error(ctx, "failed processing client message", zap.Error(err))
			return
		}
		metrics.MessageProcessingDuration.WithLabelValues(string(event.Type)).Observe(time.Since(started).Seconds())

		if event.Type == events.TypeError {
			metrics.WebsocketEvents.WithLabelValues(string(event.Type), "rejected").Inc()
			if err := b.SendPersonal(event); err != nil {
				return
			}
			continue
		}
		if err := b.Emit(ctx, event); err != nil {
			logging.Error(ctx, "failed publishing client event", zap.Error(err))
			return
		}
		metrics.WebsocketEvents.WithLabelValues(string(event.Type), "ok").Inc()
	}
}

// joinRejection maps a join failure to its close code and reason.
func joinRejection(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrAlreadyJoined):
		return websocket.ClosePolicyViolation, "User has already joined this room"
	case errors.Is(err, game.ErrNotAccepting):
		return websocket.ClosePolicyViolation, "Room is not accepting new members"
	case errors.Is(err, game.ErrRoomFull):
		return websocket.ClosePolicyViolation, "Maximum room capacity reached"
	}
	return websocket.CloseInternalServerErr, "Internal server error"
}

func closeWithPolicy(conn *websocket.Conn, reason string) {
	closeWithReason(conn, websocket.ClosePolicyViolation, reason)
}

func closeWithReason(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
	_ = conn.Close()
}
