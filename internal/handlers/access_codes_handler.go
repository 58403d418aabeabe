package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/validation"
)

func registerAccessCodeRoutes(r *gin.Engine, verifier CodeVerifier, log *zap.Logger) {
	v := validation.New()

	// Stateless check: decode, completeness, checksum and age. No device
	// lock is read or written.
	r.POST("/access-codes/verify", func(c *gin.Context) {
		var req validation.VerifyCodeRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		ac, err := verifier.Verify(c.Request.Context(), req.Code)
		if err != nil {
			writeError(c, log, err)
			return
		}
		resp := gin.H{"valid": true, "job_id": ac.JobID}
		if issued, ok := ac.IssuedTime(); ok {
			resp["issued_at"] = issued.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, resp)
	})
}
