package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/service"
)

type CatalogHandler struct {
	catalog *service.CatalogService
}

func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

type registerRequest struct {
	ContentHash string            `json:"content_hash"`
	DisplayName string            `json:"display_name"`
	SourceType  string            `json:"source_type"`
	SourceURL   string            `json:"source_url"`
	TicketID    string            `json:"ticket_id"`
	Repo        string            `json:"repo"`
	CommitHash  string            `json:"commit_hash"`
	MimeType    string            `json:"mime_type"`
	Body        string            `json:"body"`
	Metadata    map[string]string `json:"metadata"`
}

func (h *CatalogHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.SourceType == "" {
		req.SourceType = model.SourceTypeUnknown
	}
	doc, err := h.catalog.Register(c.Request.Context(), &model.Document{
		ContentHash: req.ContentHash,
		DisplayName: req.DisplayName,
		SourceType:  req.SourceType,
		SourceURL:   req.SourceURL,
		TicketID:    req.TicketID,
		Repo:        req.Repo,
		CommitHash:  req.CommitHash,
		MimeType:    req.MimeType,
		Metadata:    req.Metadata,
	}, []byte(req.Body))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *CatalogHandler) List(c *gin.Context) {
	limit, _ := strconv.ParseUint(c.DefaultQuery("limit", "100"), 10, 32)
	offset, _ := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 32)
	docs, err := h.catalog.List(c.Request.Context(), model.DocumentFilter{
		SourceType:     c.Query("source_type"),
		NameContains:   c.Query("name"),
		IncludeDeleted: c.Query("include_deleted") == "true",
		Limit:          uint(limit),
		Offset:         uint(offset),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *CatalogHandler) Get(c *gin.Context) {
	doc, err := h.catalog.Get(c.Request.Context(), c.Param("hash"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *CatalogHandler) Delete(c *gin.Context) {
	if err := h.catalog.SoftDelete(c.Request.Context(), c.Param("hash")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *CatalogHandler) Restore(c *gin.Context) {
	if err := h.catalog.Restore(c.Request.Context(), c.Param("hash")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *CatalogHandler) Purge(c *gin.Context) {
	if err := h.catalog.HardDelete(c.Request.Context(), c.Param("hash")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
