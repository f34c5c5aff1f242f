package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studio233/batchd/ecode"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/net/middleware"
	"github.com/studio233/batchd/net/resp"
	"github.com/studio233/batchd/oss"
)

const defaultMaxUpload = 20 << 20

// HandleUpload stores a source image and returns the URL to submit
func (h *Handler) HandleUpload(c *gin.Context) {
	if h.store == nil {
		resp.Fail(c.Writer, resp.Code(ecode.Unavailable))
		return
	}
	limit := h.maxUpload
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			resp.Fail(c.Writer, &resp.Exception{Status: http.StatusRequestEntityTooLarge, Code: ecode.RequestErr, Message: "upload too large"})
			return
		}
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsRequired("file")))
		return
	}
	if fh.Size > limit {
		resp.Fail(c.Writer, &resp.Exception{Status: http.StatusRequestEntityTooLarge, Code: ecode.RequestErr, Message: fmt.Sprintf("upload exceeds %d bytes", limit)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("file")))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		resp.Fail(c.Writer, resp.BadRequest(ecode.FieldIsInvalid("file")))
		return
	}

	contentType := http.DetectContentType(data)
	ext, ok := oss.ImageExtension(contentType)
	if !ok {
		resp.Fail(c.Writer, resp.BadRequest(fmt.Sprintf("unsupported content type %s", contentType)))
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	path := fmt.Sprintf("uploads/%s/%s%s", userID, h.newName(), ext)
	obj, err := h.store.Put(ctx, path, bytes.NewReader(data), contentType)
	if err != nil {
		logger.Error(ctx, "upload failed", "user_id", userID, "path", path, "error", err)
		resp.Fail(c.Writer, resp.InternalServer(ecode.Failed("upload")))
		return
	}
	url := obj.URL
	if url == "" {
		if url, err = h.store.GetURL(ctx, path); err != nil {
			resp.Fail(c.Writer, resp.InternalServer(ecode.Failed("upload")))
			return
		}
	}
	logger.Info(ctx, "image uploaded", "user_id", userID, "path", path, "size", len(data))
	resp.WithStatusCode(c.Writer, http.StatusCreated, map[string]any{
		"url":          url,
		"path":         path,
		"size":         len(data),
		"content_type": contentType,
	})
}
