package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imguard/internal/metrics"
	"imguard/internal/middleware"
	"imguard/internal/service"
)

// UploadHandler handles the image upload endpoint.
type UploadHandler struct {
	uploads   service.UploadService
	observer  metrics.Observer
	log       *zap.Logger
	responder *errorResponder
}

// NewUploadHandler creates a new UploadHandler. exposeDetail controls whether
// internal error details reach the caller.
func NewUploadHandler(uploads service.UploadService, observer metrics.Observer, log *zap.Logger, exposeDetail bool) *UploadHandler {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &UploadHandler{
		uploads:   uploads,
		observer:  observer,
		log:       log,
		responder: &errorResponder{log: log, exposeDetail: exposeDetail},
	}
}

// Upload handles POST /upload
// @Summary Upload an image
// @Description Upload one JPEG, PNG, GIF or WebP image as multipart field "file"
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image to upload"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorBody "Validation failure"
// @Failure 403 {object} ErrorBody "Origin not allowed"
// @Failure 413 {object} ErrorBody "Request or file too large"
// @Failure 429 {object} ErrorBody "Rate limited or quota reached"
// @Failure 500 {object} ErrorBody "Storage failure"
// @Router /upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	req := &service.UploadRequest{
		Identity:      middleware.GetIdentity(c),
		Origin:        c.GetHeader("Origin"),
		ContentLength: c.Request.ContentLength,
		ContentType:   c.GetHeader("Content-Type"),
		Body:          c.Request.Body,
	}

	result, err := h.uploads.Upload(c.Request.Context(), req)
	if err != nil {
		status, code := h.responder.handle(c, err)
		h.observer.RecordOutcome(code)

		fields := []zap.Field{
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("identity", req.Identity),
			zap.String("code", code),
			zap.Int("status", status),
			zap.Error(err),
		}
		var stageErr *service.StageError
		if errors.As(err, &stageErr) {
			fields = append(fields, zap.Stringer("stage", stageErr.Stage))
		}
		if status >= http.StatusInternalServerError {
			h.log.Error("upload failed", fields...)
		} else {
			h.log.Info("upload refused", fields...)
		}
		return
	}

	h.observer.RecordOutcome("OK")
	h.log.Info("upload accepted",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("identity", req.Identity),
		zap.String("key", result.Object.Key),
		zap.Int64("size", result.Object.Size))

	meta := result.Meta
	c.JSON(http.StatusOK, UploadResponse{
		URL:            result.Object.URL,
		Usage:          service.Summarize(result.Usage),
		ProcessingMeta: &meta,
	})
}
