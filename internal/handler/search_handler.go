package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	results, err := h.search.Search(c.Request.Context(), getUserID(c), req.ConversationID, req.Query, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"results": results})
}
