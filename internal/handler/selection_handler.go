package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/service"
)

type SelectionHandler struct {
	selections *service.SelectionService
}

func NewSelectionHandler(selections *service.SelectionService) *SelectionHandler {
	return &SelectionHandler{selections: selections}
}

func documentIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid document id")
		return 0, false
	}
	return id, true
}

type enableRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *SelectionHandler) SetUserDefault(c *gin.Context) {
	id, ok := documentIDParam(c)
	if !ok {
		return
	}
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		response.Error(c, errcode.ErrInvalid, "enabled required")
		return
	}
	if err := h.selections.SetUserDefault(c.Request.Context(), getUserID(c), id, *req.Enabled); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *SelectionHandler) ClearUserDefault(c *gin.Context) {
	id, ok := documentIDParam(c)
	if !ok {
		return
	}
	if err := h.selections.ClearUserDefault(c.Request.Context(), getUserID(c), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *SelectionHandler) SetConversationOverride(c *gin.Context) {
	id, ok := documentIDParam(c)
	if !ok {
		return
	}
	conversationID := c.Param("conversation_id")
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		response.Error(c, errcode.ErrInvalid, "enabled required")
		return
	}
	if err := h.selections.SetConversationOverride(c.Request.Context(), getUserID(c), conversationID, id, *req.Enabled); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *SelectionHandler) ClearConversationOverride(c *gin.Context) {
	id, ok := documentIDParam(c)
	if !ok {
		return
	}
	if err := h.selections.ClearConversationOverride(c.Request.Context(), c.Param("conversation_id"), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// Effective reports resolved enablement per document, with the tier that
// decided each one. document_id may repeat; empty means the whole catalog.
func (h *SelectionHandler) Effective(c *gin.Context) {
	var documentIDs []int64
	for _, raw := range c.QueryArray("document_id") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.Error(c, errcode.ErrInvalid, "invalid document id")
			return
		}
		documentIDs = append(documentIDs, id)
	}
	resolved, err := h.selections.Effective(c.Request.Context(), getUserID(c), c.Query("conversation_id"), documentIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resolved)
}
