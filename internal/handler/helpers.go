package handler

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpusd/corpusd/internal/middleware"
	"github.com/corpusd/corpusd/internal/pkg/errcode"
	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)

	var verr *appErr.ValidationError
	if stderrors.As(err, &verr) {
		response.FieldErrors(c, errcode.ErrInvalid, verr.Fields)
		return
	}
	var dimErr *appErr.DimensionMismatchError
	if stderrors.As(err, &dimErr) {
		response.Error(c, errcode.ErrDimensionMismatch, dimErr.Error())
		return
	}
	switch {
	case stderrors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case stderrors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case stderrors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case stderrors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case stderrors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case stderrors.Is(err, appErr.ErrPoolExhausted):
		response.Error(c, errcode.ErrPoolExhausted, "server busy")
	case stderrors.Is(err, appErr.ErrEncryption):
		response.Error(c, errcode.ErrEncryption, "credential vault unavailable")
	case stderrors.Is(err, appErr.ErrMigration):
		response.Error(c, errcode.ErrMigration, "migration failed")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
