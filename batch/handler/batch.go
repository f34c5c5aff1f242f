package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/ecode"
	"github.com/studio233/batchd/net/middleware"
	"github.com/studio233/batchd/net/resp"
	"github.com/studio233/batchd/validator"
)

// HandleSubmit accepts a batch and answers 202 with its initial summary
func (h *Handler) HandleSubmit(c *gin.Context) {
	var body structs.SubmitBatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(err.Error()))
		return
	}
	if errs := validator.ValidateStruct(&body); len(errs) > 0 {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("body"), errs))
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" && body.IdempotencyKey == "" {
		body.IdempotencyKey = key
	}
	body.UserID = middleware.UserID(c)
	body.Email = middleware.UserEmail(c)

	summary, err := h.svc.Submit(c.Request.Context(), &body)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Location", "/v1/batches/"+summary.ID)
	resp.WithStatusCode(c.Writer, http.StatusAccepted, summary)
}

// HandleList pages through the caller's batches, newest first
func (h *Handler) HandleList(c *gin.Context) {
	var params structs.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("limit")))
		return
	}
	params.UserID = middleware.UserID(c)

	page, err := h.svc.ListBatches(c.Request.Context(), &params)
	if err != nil {
		fail(c, err)
		return
	}
	resp.Success(c.Writer, page)
}

// HandleGetBatch is the polling endpoint
func (h *Handler) HandleGetBatch(c *gin.Context) {
	summary, err := h.svc.GetBatch(c.Request.Context(), middleware.UserID(c), c.Param("batch_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !summary.Done {
		c.Header("Retry-After", "5")
	}
	resp.Success(c.Writer, summary)
}

// HandleCancel fails the batch's queued jobs
func (h *Handler) HandleCancel(c *gin.Context) {
	summary, err := h.svc.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("batch_id"))
	if err != nil {
		fail(c, err)
		return
	}
	resp.Success(c.Writer, summary)
}

// HandleGetJob returns a single job
func (h *Handler) HandleGetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), middleware.UserID(c), c.Param("job_id"))
	if err != nil {
		fail(c, err)
		return
	}
	resp.Success(c.Writer, job)
}
