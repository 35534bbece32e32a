package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lingotutor/logger"
	"lingotutor/services"
)

const sessionKey = "session"

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*services.Session, error)
}

type AuthMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewAuthMiddleware(log *logger.Logger, validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), validator: validator}
}

// RequireAuth resolves the bearer token (or ?token= for websocket upgrades)
// into a Session stored on the gin context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		sess, err := am.validator.ValidateToken(c.Request.Context(), tokenString)
		if err != nil || !sess.Active() {
			am.log.Debug("Rejected token", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func CurrentSession(c *gin.Context) (*services.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*services.Session)
	return sess, ok && sess.Active()
}

func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("token")
}
