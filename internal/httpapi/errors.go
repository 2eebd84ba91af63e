package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicebatch-platform/internal/batches"
	"voicebatch-platform/internal/reporting"
	"voicebatch-platform/pkg/logger"
)

// writeError maps domain errors to a status and a {success:false, error}
// body. Internal details are logged, not returned.
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	log := logger.FromGin(c)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "err", err)
	} else {
		log.Info("request rejected", "status", status, "err", err)
	}
	_ = c.Error(err)
	abort(c, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, batches.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, batches.ErrNotFound):
		return http.StatusNotFound, "batch not found"
	case errors.Is(err, batches.ErrConflict):
		return http.StatusConflict, "batch already exists"
	case errors.Is(err, batches.ErrUpstream):
		return http.StatusBadGateway, "voice platform request failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
