package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phdwriter/essay_go_server/internal/pkg/jwt"
	"github.com/phdwriter/essay_go_server/internal/pkg/response"
)

const ctxUserIDKey = "user_id"

// Auth requires a valid bearer token and puts the user id on the context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.AuthError(c, "missing authorization token")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(token, secret)
		if err != nil {
			if err == jwt.ErrExpiredToken {
				response.AuthError(c, "token has expired")
			} else {
				response.AuthError(c, "invalid token")
			}
			c.Abort()
			return
		}

		c.Set(ctxUserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalAuth parses a token when present but never rejects the request.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if claims, err := jwt.ParseToken(token, secret); err == nil {
				c.Set(ctxUserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or 0 when unauthenticated.
func GetUserID(c *gin.Context) int64 {
	if v, ok := c.Get(ctxUserIDKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// websocket upgrades cannot set headers from the browser
	return c.Query("token")
}
