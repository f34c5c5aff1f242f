// Package handler exposes the batch lifecycle over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studio233/batchd/batch/service"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/billing"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/ecode"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/logging/observes"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/nanoid"
	"github.com/studio233/batchd/net/middleware"
	"github.com/studio233/batchd/net/resp"
	"github.com/studio233/batchd/oss"
	"github.com/studio233/batchd/security/jwt"
)

// HealthFunc reports dependency health, see data.Data.Health
type HealthFunc func(ctx context.Context) map[string]any

// Handler serves the public API and the worker webhook
type Handler struct {
	svc       *service.Service
	store     oss.Interface
	webhook   *config.Webhook
	maxUpload int64
	health    HealthFunc
	newName   func() string
	now       func() time.Time
}

// New creates a handler. store may be nil, which disables uploads.
func New(svc *service.Service, store oss.Interface, webhook *config.Webhook, maxUpload int64, health HealthFunc) *Handler {
	if webhook == nil {
		webhook = &config.Webhook{}
	}
	return &Handler{
		svc:       svc,
		store:     store,
		webhook:   webhook,
		maxUpload: maxUpload,
		health:    health,
		newName:   func() string { return nanoid.Lower(nanoid.PrimaryKeySize) },
		now:       time.Now,
	}
}

// Register mounts every route on r. limiter throttles submissions and may be nil.
func (h *Handler) Register(r *gin.Engine, tm *jwt.TokenManager, limiter *middleware.RateLimiter) {
	r.GET("/health", h.HandleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/v1/webhooks/jobs", h.HandleWebhook)

	v1 := r.Group("/v1", middleware.Auth(tm))

	submit := []gin.HandlerFunc{h.HandleSubmit}
	if limiter != nil {
		submit = append([]gin.HandlerFunc{limiter.Handler()}, submit...)
	}
	batches := v1.Group("/batches")
	{
		batches.POST("", submit...)
		batches.GET("", h.HandleList)
		batches.GET("/:batch_id", h.HandleGetBatch)
		batches.POST("/:batch_id/cancel", h.HandleCancel)
	}
	v1.GET("/jobs/:job_id", h.HandleGetJob)
	v1.POST("/uploads", h.HandleUpload)
	v1.GET("/quota", h.HandleQuota)
}

// HandleHealth reports 200 when every configured dependency answers
func (h *Handler) HandleHealth(c *gin.Context) {
	report := map[string]any{"status": "up"}
	if h.health != nil {
		report = h.health(c.Request.Context())
	}
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		report["status"] = "down"
		report["jobs"] = map[string]any{"status": "down", "error": err.Error()}
	}
	if report["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	resp.Success(c.Writer, report)
}

// HandleQuota returns the caller's remaining quota
func (h *Handler) HandleQuota(c *gin.Context) {
	userID := middleware.UserID(c)
	balance, err := h.svc.Balance(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	resp.Success(c.Writer, map[string]any{"user_id": userID, "balance": balance})
}

// fail maps service errors onto the response envelope
func fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnknownOperation),
		errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, structs.ErrUnknownEvent),
		errors.Is(err, structs.ErrMissingResult),
		errors.Is(err, structs.ErrJobMismatch):
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		resp.Fail(c.Writer, resp.NotFound(ecode.NotExist("resource")))
	case errors.Is(err, service.ErrBatchTooLarge):
		resp.Fail(c.Writer, &resp.Exception{Code: ecode.BatchTooLarge, Message: err.Error()})
	case errors.Is(err, service.ErrQuotaExceeded):
		resp.Fail(c.Writer, resp.Code(ecode.QuotaExceeded))
	case errors.Is(err, service.ErrBatchClosed):
		resp.Fail(c.Writer, resp.Code(ecode.BatchClosed))
	case errors.Is(err, service.ErrSubmissionInProgress):
		resp.Fail(c.Writer, resp.Conflict(err.Error()))
	case errors.Is(err, billing.ErrUnavailable):
		logger.Warn(ctx, "billing unavailable", "error", err)
		resp.Fail(c.Writer, resp.Code(ecode.Unavailable))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn(ctx, "request deadline exceeded", "path", c.Request.URL.Path)
		resp.Fail(c.Writer, resp.Code(ecode.Deadline))
	default:
		logger.Error(ctx, "request failed", "path", c.Request.URL.Path, "error", err)
		observes.CaptureError(ctx, err)
		resp.Fail(c.Writer, resp.InternalServer(""))
	}
}
