package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/accesscode"
	"github.com/imrishuroy/fieldlink/internal/idempotency"
	"github.com/imrishuroy/fieldlink/internal/links"
	"github.com/imrishuroy/fieldlink/internal/logger"
	"github.com/imrishuroy/fieldlink/internal/validation"
)

// JobSealer marks a job immutable. remote.CachedReader satisfies it.
type JobSealer interface {
	Seal(ctx context.Context, jobID string) error
}

// CodeVerifier checks an access code without touching device lock state.
// handshake.Service satisfies it.
type CodeVerifier interface {
	Verify(ctx context.Context, code string) (accesscode.AccessCode, error)
}

// HandlerConfig groups dependencies for the link API.
type HandlerConfig struct {
	Links       *links.Manager
	Idempotency *idempotency.Store // optional; enables Idempotency-Key on POST /links
	Sealer      JobSealer          // optional; enables POST /jobs/:jobID/seal
	Verifier    CodeVerifier       // optional; enables POST /access-codes/verify
	Logger      *zap.Logger
}

type linkResponse struct {
	*links.MagicLink
	DerivedStatus links.Status `json:"derived_status"`
}

type attentionResponse struct {
	Token      string `json:"token"`
	JobID      string `json:"job_id"`
	AgeMinutes int64  `json:"age_minutes"`
	Urgent     bool   `json:"urgent"`
	FlagReason string `json:"flag_reason,omitempty"`
}

// RegisterLinkRoutes registers routes for the link lifecycle API.
func RegisterLinkRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &linkHandler{
		links:  cfg.Links,
		idem:   cfg.Idempotency,
		sealer: cfg.Sealer,
		v:      validation.New(),
		log:    logger.OrNop(cfg.Logger).Named("http"),
	}

	r.POST("/links", h.issue)
	r.GET("/links/attention", h.attention)
	r.POST("/links/attention/flag", h.flagStale)
	r.GET("/links/:token", h.get)
	r.GET("/links/:token/authorize", h.authorize)
	r.POST("/links/:token/access", h.recordAccess)
	r.POST("/links/:token/revoke", h.revoke)
	r.POST("/links/:token/extend", h.extend)
	r.POST("/links/:token/lifecycle", h.lifecycle)
	r.POST("/links/:token/flag", h.flag)
	r.POST("/links/:token/flag/ack", h.acknowledge)

	r.POST("/jobs/:jobID/links/regenerate", h.regenerate)
	r.POST("/jobs/:jobID/links/revoke", h.revokeAll)
	if cfg.Sealer != nil {
		r.POST("/jobs/:jobID/seal", h.seal)
	}
	if cfg.Verifier != nil {
		registerAccessCodeRoutes(r, cfg.Verifier, h.log)
	}
}

type linkHandler struct {
	links  *links.Manager
	idem   *idempotency.Store
	sealer JobSealer
	v      *validatorv10.Validate
	log    *zap.Logger
}

func (h *linkHandler) issue(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.IssueLinkRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if key != "" && h.idem != nil {
		if replayed := h.claimOrReplay(c, key, req.JobID); replayed {
			return
		}
	}

	data, err := h.links.Issue(ctx, links.IssueRequest{
		JobID:            req.JobID,
		WorkspaceID:      req.WorkspaceID,
		Policy:           links.Policy(req.Policy),
		DeliveryContact:  req.DeliveryContact,
		SecondaryContact: req.SecondaryContact,
		AssignedToTechID: req.AssignedToTechID,
	})
	if err != nil {
		if key != "" && h.idem != nil {
			if merr := h.idem.MarkFailed(ctx, key, err.Error()); merr != nil {
				h.log.Warn("mark idempotency failed", zap.String("key", key), zap.Error(merr))
			}
		}
		writeError(c, h.log, err)
		return
	}

	body, _ := json.Marshal(data)
	if key != "" && h.idem != nil {
		if err := h.idem.MarkDone(ctx, key, string(body), http.StatusCreated); err != nil {
			h.log.Warn("mark idempotency done", zap.String("key", key), zap.Error(err))
		}
	}
	c.Header("Location", fmt.Sprintf("/links/%s", data.Token))
	c.Data(http.StatusCreated, "application/json", body)
}

// claimOrReplay claims key for this request. When the key was used before it
// writes the stored outcome and reports true.
func (h *linkHandler) claimOrReplay(c *gin.Context, key, jobID string) bool {
	ctx := c.Request.Context()
	created, err := h.idem.CreateIfNotExists(ctx, key, jobID)
	if err != nil {
		writeError(c, h.log, err)
		return true
	}
	if created {
		return false
	}

	rec, err := h.idem.Get(ctx, key)
	if err != nil {
		writeError(c, h.log, err)
		return true
	}
	if rec == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "IDEMPOTENCY_CONFLICT", "message": "retry the request"})
		return true
	}
	switch rec.Status {
	case idempotency.StatusDone:
		c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	case idempotency.StatusFailed:
		// previous attempt failed; free the key so the client can retry
		if err := h.idem.Release(ctx, key); err != nil {
			writeError(c, h.log, err)
			return true
		}
		c.JSON(http.StatusConflict, gin.H{"error": "PREVIOUS_ATTEMPT_FAILED", "message": rec.Note})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "unknown idempotency status"})
	}
	return true
}

func (h *linkHandler) get(c *gin.Context) {
	ctx := c.Request.Context()
	l, err := h.links.Get(ctx, c.Param("token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	st, err := h.links.Status(ctx, l.Token)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, linkResponse{MagicLink: l, DerivedStatus: st})
}

func (h *linkHandler) authorize(c *gin.Context) {
	l, err := h.links.Authorize(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": l.Token, "job_id": l.JobID, "workspace_id": l.WorkspaceID})
}

func (h *linkHandler) recordAccess(c *gin.Context) {
	l, err := h.links.RecordFirstAccess(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *linkHandler) revoke(c *gin.Context) {
	if err := h.links.Revoke(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *linkHandler) extend(c *gin.Context) {
	var req validation.ExtendLinkRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	l, err := h.links.Extend(c.Request.Context(), c.Param("token"), links.Policy(req.Policy))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *linkHandler) lifecycle(c *gin.Context) {
	var req validation.LifecycleRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	l, err := h.links.AdvanceLifecycle(c.Request.Context(), c.Param("token"), links.Stage(req.Stage), req.Metadata)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *linkHandler) flag(c *gin.Context) {
	var req validation.FlagRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	l, err := h.links.Flag(c.Request.Context(), c.Param("token"), req.Reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *linkHandler) acknowledge(c *gin.Context) {
	l, err := h.links.AcknowledgeFlag(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func toAttention(items []links.AttentionItem) []attentionResponse {
	out := make([]attentionResponse, 0, len(items))
	for _, it := range items {
		out = append(out, attentionResponse{
			Token:      it.Link.Token,
			JobID:      it.Link.JobID,
			AgeMinutes: int64(it.Age / time.Minute),
			Urgent:     it.Urgent,
			FlagReason: it.Link.FlagReason,
		})
	}
	return out
}

func (h *linkHandler) attention(c *gin.Context) {
	items, err := h.links.FindNeedingAttention(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": toAttention(items)})
}

func (h *linkHandler) flagStale(c *gin.Context) {
	items, err := h.links.FlagStale(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": toAttention(items)})
}

func (h *linkHandler) regenerate(c *gin.Context) {
	var req validation.RegenerateLinkRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	data, err := h.links.Regenerate(c.Request.Context(), links.IssueRequest{
		JobID:            c.Param("jobID"),
		WorkspaceID:      req.WorkspaceID,
		Policy:           links.Policy(req.Policy),
		DeliveryContact:  req.DeliveryContact,
		SecondaryContact: req.SecondaryContact,
		AssignedToTechID: req.AssignedToTechID,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, data)
}

func (h *linkHandler) revokeAll(c *gin.Context) {
	n, err := h.links.RevokeAll(c.Request.Context(), c.Param("jobID"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

func (h *linkHandler) seal(c *gin.Context) {
	if err := h.sealer.Seal(c.Request.Context(), c.Param("jobID")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
