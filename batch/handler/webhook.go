package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studio233/batchd/batch/service"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/ecode"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/net/resp"
	"github.com/studio233/batchd/security/signature"
)

const maxEventBytes = 64 << 10

// HandleWebhook applies a signed worker event. Transient failures answer
// 503 so the sender redelivers; duplicates and ignored events answer 200.
func (h *Handler) HandleWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	if h.webhook.Secret == "" {
		resp.Fail(c.Writer, resp.Forbidden("webhook disabled"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes+1))
	if err != nil || len(body) > maxEventBytes {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("body")))
		return
	}
	if err := signature.Verify(h.webhook.Secret, c.GetHeader(signature.Header), body, h.webhook.Tolerance, h.now()); err != nil {
		logger.Warn(ctx, "webhook signature rejected", "error", err, "client_ip", c.ClientIP())
		metrics.EventReceived("webhook", metrics.OutcomeError)
		resp.Fail(c.Writer, resp.Code(ecode.SignCheckErr))
		return
	}

	var ev structs.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.EventReceived("webhook", metrics.OutcomeError)
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}

	res, err := h.svc.ApplyEvent(ctx, &ev)
	if err != nil {
		metrics.EventReceived("webhook", metrics.OutcomeError)
		if service.IsPermanent(err) {
			fail(c, err)
			return
		}
		logger.Error(ctx, "apply webhook event", "event_id", ev.ID, "job_id", ev.JobID, "error", err)
		resp.Fail(c.Writer, &resp.Exception{Status: http.StatusServiceUnavailable, Code: ecode.Unavailable})
		return
	}
	metrics.EventReceived("webhook", res.Outcome)
	resp.Success(c.Writer, res)
}
