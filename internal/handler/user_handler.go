package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/corpusd/corpusd/internal/pkg/errcode"
	"github.com/corpusd/corpusd/internal/pkg/response"
	"github.com/corpusd/corpusd/internal/repo"
)

type UserHandler struct {
	users *repo.UserRepo
}

func NewUserHandler(users *repo.UserRepo) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	userID := getUserID(c)
	if err := h.users.Ensure(ctx, userID); err != nil {
		handleError(c, err)
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

type profileRequest struct {
	Email                *string  `json:"email"`
	DisplayName          *string  `json:"display_name"`
	Theme                *string  `json:"theme"`
	PreferredModel       *string  `json:"preferred_model"`
	PreferredTemperature *float64 `json:"preferred_temperature"`
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()
	userID := getUserID(c)
	if err := h.users.Ensure(ctx, userID); err != nil {
		handleError(c, err)
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Theme != nil {
		user.Theme = *req.Theme
	}
	if req.PreferredModel != nil {
		user.PreferredModel = *req.PreferredModel
	}
	if req.PreferredTemperature != nil {
		if *req.PreferredTemperature < 0 || *req.PreferredTemperature > 2 {
			response.Error(c, errcode.ErrInvalid, "preferred_temperature out of range")
			return
		}
		user.PreferredTemperature = *req.PreferredTemperature
	}
	if err := h.users.UpdatePreferences(ctx, user); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}
