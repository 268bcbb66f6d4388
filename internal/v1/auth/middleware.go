package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/logging"
)

const sessionContextKey = "auth.session"

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) && len(header) > len(prefix) {
		return header[len(prefix):], true
	}
	return "", false
}

// RequireSession rejects requests without a valid bearer session and
// attaches the session to the gin context for downstream handlers.
func RequireSession(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
			return
		}

		sess, err := store.Get(c.Request.Context(), token)
		if err != nil {
			logging.Error(c.Request.Context(), "session lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		if sess == nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
			return
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok
}
