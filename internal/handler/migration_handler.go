package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/repo"
)

// MigrationHandler exposes checkpoint state read-only; runs happen through
// the CLI, not the API.
type MigrationHandler struct {
	checkpoints *repo.CheckpointRepo
}

func NewMigrationHandler(checkpoints *repo.CheckpointRepo) *MigrationHandler {
	return &MigrationHandler{checkpoints: checkpoints}
}

func (h *MigrationHandler) Get(c *gin.Context) {
	source := c.Param("source")
	if !model.ValidMigrationSource(source) {
		response.Error(c, errcode.ErrInvalid, "unknown migration source")
		return
	}
	cp, err := h.checkpoints.Get(c.Request.Context(), source)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cp)
}
