package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	codeInvalidArgument = "invalid_argument"
	codeUnauthorized    = "unauthorized"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeInternal        = "internal"
	codeUnavailable     = "unavailable"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: msg}})
}

// writeError maps a service error onto the error envelope. Unknown errors
// are logged and reported without detail.
func (h *handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		abortWithError(c, http.StatusBadRequest, codeInvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		abortWithError(c, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case errors.Is(err, services.ErrSyncInProgress):
		abortWithError(c, http.StatusConflict, codeConflict, err.Error())
	default:
		h.Logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		abortWithError(c, http.StatusInternalServerError, codeInternal, common.ErrorInternal.Error())
	}
}
