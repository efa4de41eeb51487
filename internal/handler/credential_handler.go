package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/service"
)

type CredentialHandler struct {
	vault *service.VaultService
}

func NewCredentialHandler(vault *service.VaultService) *CredentialHandler {
	return &CredentialHandler{vault: vault}
}

type credentialRequest struct {
	Key string `json:"key"`
}

// Put stores one provider key for the caller. The key is write-only: list
// and get never return it.
func (h *CredentialHandler) Put(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.vault.Store(c.Request.Context(), getUserID(c), c.Param("provider"), req.Key); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *CredentialHandler) List(c *gin.Context) {
	providers, err := h.vault.Providers(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"providers": providers})
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	if err := h.vault.Delete(c.Request.Context(), getUserID(c), c.Param("provider")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
