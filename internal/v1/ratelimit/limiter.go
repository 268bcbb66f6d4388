// Package ratelimit enforces request and connection quotas. Counters live
// in the shared cache so the limits hold across every instance serving the
// same rooms.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/config"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/metrics"
)

// RateLimiter holds one limiter per quota. All of them share a store.
type RateLimiter struct {
	api   *limiter.Limiter // blanket quota for all API traffic
	auth  *limiter.Limiter // login and signup attempts
	rooms *limiter.Limiter // room creation and lookup
	wsIP  *limiter.Limiter // websocket upgrades per IP

	store       limiter.Store
	redisClient *redis.Client
}

// NewRateLimiter parses the configured rates and picks the backing store:
// Redis when a client is supplied, otherwise per-instance memory.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	apiRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid global API rate: %w", err)
	}

	authRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiAuth)
	if err != nil {
		return nil, fmt.Errorf("invalid auth rate: %w", err)
	}

	roomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitApiRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid rooms rate: %w", err)
	}

	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIp)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store; limits are per-instance")
	}

	return &RateLimiter{
		api:         limiter.New(store, apiRate),
		auth:        limiter.New(store, authRate),
		rooms:       limiter.New(store, roomsRate),
		wsIP:        limiter.New(store, wsIPRate),
		store:       store,
		redisClient: redisClient,
	}, nil
}

// GlobalMiddleware applies the blanket per-IP quota to everything it wraps.
// It runs before authentication, so the client IP is the only stable key.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.enforce(c, rl.api, c.ClientIP(), "global")
	}
}

// ForEndpoint applies a named quota. Authenticated requests are keyed by
// user so clients behind one NAT don't starve each other; anonymous ones
// fall back to the client IP.
func (rl *RateLimiter) ForEndpoint(name string) gin.HandlerFunc {
	var lim *limiter.Limiter
	switch name {
	case "auth":
		lim = rl.auth
	case "rooms":
		lim = rl.rooms
	default:
		lim = rl.api
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if sess, ok := auth.SessionFromContext(c); ok {
			key = sess.UserID.String()
		}
		rl.enforce(c, lim, key, name)
	}
}

// AllowWebSocket checks the per-IP connection quota before an upgrade is
// attempted. It writes the 429 itself and reports whether to proceed.
func (rl *RateLimiter) AllowWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	res, err := rl.wsIP.Get(ctx, c.ClientIP())
	if err != nil {
		// Fail open: a lost store must not take connections down with it.
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}

	if res.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(res.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()
	return true
}

func (rl *RateLimiter) enforce(c *gin.Context, lim *limiter.Limiter, key, scope string) {
	ctx := c.Request.Context()

	res, err := lim.Get(ctx, key)
	if err != nil {
		// Fail open: a lost store must not take the API down with it.
		logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

	if res.Reached {
		metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), scope).Inc()
		c.Header("Retry-After", strconv.FormatInt(res.Reset-time.Now().Unix(), 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many requests",
			"retry_after": res.Reset,
		})
		return
	}

	metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
	c.Next()
}
