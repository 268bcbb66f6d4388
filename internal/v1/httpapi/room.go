package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/game"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/realtime"
	"github.com/quillgame/quill/backend/go/internal/v1/users"
)

// handleCreateRoom makes a lobby owned by the calling user, persists it and
// spawns its game loop. The owner is not a member yet; they join over the
// socket like everyone else.
func (s *Server) handleCreateRoom(c *gin.Context) {
	ctx := c.Request.Context()

	sess, ok := auth.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	user, err := s.users.ByID(ctx, sess.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		// The session outlived its account.
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}
	if err != nil {
		logging.Error(ctx, "user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	room := game.New(s.bus.Client(), user.Member())
	if err := room.Save(ctx); err != nil {
		logging.Error(ctx, "failed to persist room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	realtime.NewLoop(s.bus, room, s.words, s.loop).Start(s.registry)

	logging.Info(ctx, "created room",
		zap.String("room_id", room.RoomID),
		zap.String("owner", user.Username))
	c.JSON(http.StatusOK, room)
}

// handleRoom serves GET /room/{id}. A plain request reads the room; an
// upgrade request becomes the member's socket.
func (s *Server) handleRoom(c *gin.Context) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		s.serveWs(c)
		return
	}
	s.getRoom(c)
}

// getRoom is the REST read. It carries the same bearer auth as the other
// endpoints, but inline: the route cannot take RequireSession as middleware
// because the socket path on the same route authenticates in-stream.
func (s *Server) getRoom(c *gin.Context) {
	ctx := c.Request.Context()

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
		return
	}
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		logging.Error(ctx, "session lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	if sess == nil {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	room, err := game.Load(ctx, s.bus.Client(), c.Param("id"))
	if errors.Is(err, game.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Room not found"})
		return
	}
	if err != nil {
		logging.Error(ctx, "failed to read room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, room)
}
