// Package httpapi mounts the REST and websocket surface onto the game
// backend: account endpoints, room creation and lookup, and the per-room
// socket that upgrades off the room route.
package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/bus"
	"github.com/quillgame/quill/backend/go/internal/v1/ratelimit"
	"github.com/quillgame/quill/backend/go/internal/v1/realtime"
	"github.com/quillgame/quill/backend/go/internal/v1/users"
)

// UserDirectory is the slice of the user store the API needs. Production
// hands over *users.Store; tests swap in an in-memory fake.
type UserDirectory interface {
	Create(ctx context.Context, username, password string) (*users.User, error)
	ByUsername(ctx context.Context, username string) (*users.User, error)
	ByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Deps carries everything the API surface needs. Every field is required;
// AllowedOrigins falls back to the local development defaults when empty.
type Deps struct {
	Users          UserDirectory
	Sessions       auth.Store
	Bus            *bus.Service
	Registry       *realtime.Registry
	Words          *realtime.WordBank
	Limiter        *ratelimit.RateLimiter
	Loop           realtime.LoopConfig
	AllowedOrigins []string
}

// Server holds the handlers. Construct with New, mount with Register.
type Server struct {
	users    UserDirectory
	sessions auth.Store
	bus      *bus.Service
	registry *realtime.Registry
	words    *realtime.WordBank
	limiter  *ratelimit.RateLimiter
	loop     realtime.LoopConfig
	upgrader websocket.Upgrader
}

func New(deps Deps) *Server {
	allowed := deps.AllowedOrigins
	if len(allowed) == 0 {
		allowed = auth.ParseAllowedOrigins("")
	}
	return &Server{
		users:    deps.Users,
		sessions: deps.Sessions,
		bus:      deps.Bus,
		registry: deps.Registry,
		words:    deps.Words,
		limiter:  deps.Limiter,
		loop:     deps.Loop,
		upgrader: newUpgrader(allowed),
	}
}

// Register mounts every route on the engine. Health and metrics endpoints
// are mounted by the caller, which owns those dependencies.
func (s *Server) Register(r *gin.Engine) {
	user := r.Group("/user", s.limiter.ForEndpoint("auth"))
	user.POST("/signup", s.handleSignup)
	user.POST("/token", s.handleToken)
	user.POST("/logout", auth.RequireSession(s.sessions), s.handleLogout)

	// RequireSession runs before the room limiter so the limit keys on the
	// user instead of the IP.
	r.POST("/room", auth.RequireSession(s.sessions), s.limiter.ForEndpoint("rooms"), s.handleCreateRoom)
	r.GET("/room/:id", s.handleRoom)

	r.GET("/ping", s.handlePing)
}

// newUpgrader builds the websocket upgrader. Browser origins are checked
// against the allow list; an empty Origin header passes so non-browser
// clients can connect.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return auth.IsOriginAllowed(origin, allowedOrigins)
		},
		WriteBufferPool: &sync.Pool{},
	}
}

// handlePing answers the uptime probe.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
