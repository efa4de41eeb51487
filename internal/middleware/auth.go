package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/jwt"
	"github.com/corpusd/corpusd/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextAdminKey  = "is_admin"
)

// anonymousUser identifies callers when auth is disabled and no X-User-Id
// header is sent, which is the single-user deployment case.
const anonymousUser = "local"

// Auth resolves the caller identity. With auth enabled it requires a Bearer
// token; disabled deployments trust the X-User-Id header instead.
func Auth(secret []byte, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
			if userID == "" {
				userID = anonymousUser
			}
			c.Set(ContextUserIDKey, userID)
			c.Set(ContextAdminKey, true)
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(parts[1], secret)
		if err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextAdminKey, claims.Admin)
		c.Next()
	}
}

// AdminOnly gates the config and catalog write surface.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, ok := c.Get(ContextAdminKey); ok {
			if admin, _ := v.(bool); admin {
				c.Next()
				return
			}
		}
		response.Error(c, errcode.ErrForbidden, "admin required")
		c.Abort()
	}
}
