package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/jwt"
	"github.com/corpusd/corpusd/internal/pkg/password"
	"github.com/corpusd/corpusd/internal/pkg/response"
)

type AuthHandler struct {
	cfg config.AuthConfig
}

func NewAuthHandler(cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token exchanges the admin credentials from deploy config for a bearer
// token. Non-admin callers get their identity from the gateway, not here.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if h.cfg.AdminUser == "" || h.cfg.AdminPasswordHash == "" {
		response.Error(c, errcode.ErrForbidden, "admin login not configured")
		return
	}
	if req.Username != h.cfg.AdminUser || password.Compare(h.cfg.AdminPasswordHash, req.Password) != nil {
		response.Error(c, errcode.ErrUnauthorized, "invalid credentials")
		return
	}
	ttl := time.Duration(h.cfg.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := jwt.GenerateToken(req.Username, true, []byte(h.cfg.JWTSecret), ttl)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "expires_in": int64(ttl.Seconds())})
}
