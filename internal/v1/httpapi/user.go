package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/users"
)

const tokenType = "bearer"

// loginResponse is the shared shape of signup and token responses.
type loginResponse struct {
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type signupBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleSignup registers an account and logs it straight in.
func (s *Server) handleSignup(c *gin.Context) {
	ctx := c.Request.Context()

	var body signupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password are required"})
		return
	}

	hashed, err := auth.HashPassword(body.Password)
	if err != nil {
		logging.Error(ctx, "failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	user, err := s.users.Create(ctx, body.Username, hashed)
	if errors.Is(err, users.ErrUsernameTaken) {
		c.JSON(http.StatusConflict, gin.H{"message": "Username is already in use"})
		return
	}
	if err != nil {
		logging.Error(ctx, "failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	logging.Info(ctx, "created new user", zap.String("username", user.Username))

	s.login(c, user)
}

// handleToken exchanges form credentials for a bearer token. The body is
// form-encoded for OAuth2 password-flow compatibility.
func (s *Server) handleToken(c *gin.Context) {
	ctx := c.Request.Context()

	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		rejectLogin(c)
		return
	}

	user, err := s.users.ByUsername(ctx, username)
	if errors.Is(err, users.ErrUserNotFound) {
		logging.Info(ctx, "login attempt for unknown user", zap.String("username", username))
		rejectLogin(c)
		return
	}
	if err != nil {
		logging.Error(ctx, "user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	if !auth.CheckPassword(password, user.Password) {
		rejectLogin(c)
		return
	}

	s.login(c, user)
}

// handleLogout invalidates the caller's session.
func (s *Server) handleLogout(c *gin.Context) {
	ctx := c.Request.Context()

	sess, ok := auth.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		logging.Error(ctx, "failed to delete session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// login opens a session for the user and writes the token response.
func (s *Server) login(c *gin.Context, user *users.User) {
	ctx := c.Request.Context()

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		logging.Error(ctx, "failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Username:    user.Username,
		AccessToken: sess.ID,
		TokenType:   tokenType,
	})
}

// rejectLogin answers a failed credential exchange. The body never says
// whether the username or the password was wrong.
func rejectLogin(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.JSON(http.StatusUnauthorized, gin.H{"message": "Incorrect username or password"})
}
