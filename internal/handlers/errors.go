package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/errs"
	"github.com/imrishuroy/fieldlink/internal/links"
)

// statusFor maps an error code to an HTTP status.
func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeLocked, errs.CodeStageRegression:
		return http.StatusConflict
	case errs.CodeSealed, errs.CodeExpiredLink, errs.CodeRevoked:
		return http.StatusGone
	case errs.CodeMalformed, errs.CodeInvalidAccessCode, errs.CodeMissingParams,
		errs.CodeChecksumMismatch, errs.CodeInvalidPolicy:
		return http.StatusBadRequest
	case errs.CodeSyncFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders typed errors with their code and hides everything else.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var e *errs.Error
	if errors.As(err, &e) {
		body := gin.H{"error": e.Code, "message": e.Message}
		if len(e.Details) > 0 {
			body["details"] = e.Details
		}
		c.JSON(statusFor(e.Code), body)
		return
	}
	if errors.Is(err, links.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": "BUSY", "message": err.Error()})
		return
	}
	log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "internal error"})
}
