package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imguard/internal/domain"
	"imguard/internal/middleware"
	"imguard/internal/service"
)

// ErrorBody is the JSON shape of every error response. Error is a stable
// code clients can branch on; Message is for humans.
type ErrorBody struct {
	Error              string                `json:"error"`
	Message            string                `json:"message,omitempty"`
	Usage              *service.UsageSummary `json:"usage,omitempty"`
	RetryAfterSeconds  int64                 `json:"retryAfterSeconds,omitempty"`
	ExceededDimensions []domain.Dimension    `json:"exceededDimensions,omitempty"`
	Details            string                `json:"details,omitempty"`
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorBody{Error: code, Message: msg})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	var (
		validationErr *domain.ValidationError
		rateErr       *domain.RateLimitError
		quotaErr      *domain.QuotaExceededError
	)
	switch {
	case errors.Is(err, domain.ErrOriginForbidden):
		return http.StatusForbidden, "ORIGIN_FORBIDDEN", "origin not allowed"
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many upload attempts; try again later"
	case errors.Is(err, domain.ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request exceeds maximum allowed size"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrIncompleteUpload):
		return http.StatusBadRequest, "INCOMPLETE_UPLOAD", "upload was not received completely"
	case errors.As(err, &validationErr):
		if validationErr.Kind == domain.RejectFileTooLarge {
			return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", validationErr.Message
		}
		return http.StatusBadRequest, strings.ToUpper(string(validationErr.Kind)), validationErr.Message
	case errors.As(err, &quotaErr):
		return http.StatusTooManyRequests, "QUOTA_EXCEEDED", "free tier usage threshold reached; uploads are paused"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusInternalServerError, "UPLOAD_FAILED", "file upload to storage failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// errorResponder writes mapped error responses. Details of 5xx failures are
// only exposed outside production.
type errorResponder struct {
	log          *zap.Logger
	exposeDetail bool
}

func (r *errorResponder) body(c *gin.Context, err error) (int, ErrorBody) {
	status, code, msg := MapDomainError(err)
	body := ErrorBody{Error: code, Message: msg}

	var (
		rateErr  *domain.RateLimitError
		quotaErr *domain.QuotaExceededError
	)
	if errors.As(err, &rateErr) {
		secs := retryAfterSeconds(rateErr)
		body.RetryAfterSeconds = secs
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
		if rateErr.Usage != nil {
			summary := service.Summarize(rateErr.Usage)
			body.Usage = &summary
		}
	}
	if errors.As(err, &quotaErr) && quotaErr.Decision != nil {
		body.ExceededDimensions = quotaErr.Decision.Exceeded
		if quotaErr.Decision.Projected != nil {
			summary := service.Summarize(quotaErr.Decision.Projected)
			body.Usage = &summary
		}
	}
	if status >= http.StatusInternalServerError {
		r.log.Error("internal error",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("code", code),
			zap.Error(err))
		if r.exposeDetail {
			body.Details = err.Error()
		}
	}
	return status, body
}

// handle sends the error response for err.
func (r *errorResponder) handle(c *gin.Context, err error) (status int, code string) {
	status, body := r.body(c, err)
	c.JSON(status, body)
	return status, body.Error
}

func retryAfterSeconds(e *domain.RateLimitError) int64 {
	secs := int64(e.RetryAfter.Seconds())
	if e.RetryAfter > 0 && float64(secs) < e.RetryAfter.Seconds() {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
