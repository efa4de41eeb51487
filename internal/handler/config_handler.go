package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/service"
)

type ConfigHandler struct {
	configs *service.ConfigService
}

func NewConfigHandler(configs *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{configs: configs}
}

func (h *ConfigHandler) GetStatic(c *gin.Context) {
	response.Success(c, h.configs.Static())
}

func (h *ConfigHandler) GetDynamic(c *gin.Context) {
	cfg, err := h.configs.Dynamic(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cfg)
}

func (h *ConfigHandler) Update(c *gin.Context) {
	var patch model.DynamicConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	cfg, err := h.configs.Update(c.Request.Context(), getUserID(c), &patch)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cfg)
}

func (h *ConfigHandler) ListAudit(c *gin.Context) {
	limit, _ := strconv.ParseUint(c.DefaultQuery("limit", "50"), 10, 32)
	offset, _ := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 32)
	entries, err := h.configs.ListAudit(c.Request.Context(), uint(limit), uint(offset))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entries)
}
