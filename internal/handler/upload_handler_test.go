package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"imguard/internal/domain"
	"imguard/internal/handler"
	"imguard/internal/service"
	"imguard/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testLimits = domain.QuotaLimits{StorageBytes: 10 << 30, ClassAOps: 1_000_000, ClassBOps: 10_000_000}

func testSnapshot(storage int64) *domain.UsageSnapshot {
	return &domain.UsageSnapshot{
		Totals: domain.UsageTotals{StorageBytes: storage, ClassAOps: 12_345, ClassBOps: 10},
		Limits: testLimits,
		Source: "memory",
	}
}

func uploadContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "a.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/upload", body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request.Header.Set("Origin", "https://app.example.com")
	c.Request.RemoteAddr = "198.51.100.7:5555"
	return c, w
}

func newUploadHandler(t *testing.T, svc service.UploadService, exposeDetail bool) *handler.UploadHandler {
	return handler.NewUploadHandler(svc, nil, zaptest.NewLogger(t), exposeDetail)
}

func TestUploadHandler_Success(t *testing.T) {
	svc := new(mocks.MockUploadService)
	h := newUploadHandler(t, svc, false)

	result := &service.UploadResult{
		Object: &domain.StoredObject{Key: "uploads/abc.jpg", URL: "https://cdn.example.com/uploads/abc.jpg", Size: 4},
		Usage:  testSnapshot(1 << 30),
		Meta:   service.ProcessingMeta{Key: "uploads/abc.jpg", SizeBytes: 4, MediaType: "image/jpeg"},
	}
	svc.On("Upload", mock.Anything, mock.MatchedBy(func(req *service.UploadRequest) bool {
		return req.Origin == "https://app.example.com" && req.Identity == "198.51.100.7" && req.Body != nil
	})).Return(result, nil)

	c, w := uploadContext(t)
	h.Upload(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handler.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.example.com/uploads/abc.jpg", resp.URL)
	assert.Equal(t, "1.0 GiB of 10 GiB (10.00%)", resp.Usage.Storage)
	assert.Equal(t, "12,345 of 1,000,000 operations (1.23%)", resp.Usage.ClassA)
	require.NotNil(t, resp.ProcessingMeta)
	assert.Equal(t, "image/jpeg", resp.ProcessingMeta.MediaType)
	svc.AssertExpectations(t)
}

func TestUploadHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"origin", domain.ErrOriginForbidden, http.StatusForbidden, "ORIGIN_FORBIDDEN"},
		{"content mismatch", domain.NewValidationError(domain.RejectContentMismatch, "file content does not match image/jpeg"),
			http.StatusBadRequest, "CONTENT_MISMATCH"},
		{"unsupported", domain.NewValidationError(domain.RejectUnsupportedType, "nope"),
			http.StatusBadRequest, "UNSUPPORTED_MEDIA_TYPE"},
		{"empty", domain.NewValidationError(domain.RejectEmptyFile, "file is empty"), http.StatusBadRequest, "EMPTY_FILE"},
		{"validator size", domain.NewValidationError(domain.RejectFileTooLarge, "too big"),
			http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"request size", domain.ErrRequestTooLarge, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE"},
		{"part size", domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"incomplete", domain.ErrIncompleteUpload, http.StatusBadRequest, "INCOMPLETE_UPLOAD"},
		{"storage", fmt.Errorf("%w: connection reset", domain.ErrUploadFailed), http.StatusInternalServerError, "UPLOAD_FAILED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.MockUploadService)
			h := newUploadHandler(t, svc, false)
			svc.On("Upload", mock.Anything, mock.Anything).
				Return(nil, &service.StageError{Stage: service.StageContentValidated, Err: tt.err})

			c, w := uploadContext(t)
			h.Upload(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body handler.ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.Empty(t, body.Details)
		})
	}
}

func TestUploadHandler_RateLimited(t *testing.T) {
	svc := new(mocks.MockUploadService)
	h := newUploadHandler(t, svc, false)
	svc.On("Upload", mock.Anything, mock.Anything).
		Return(nil, &service.StageError{Stage: service.StageRateChecked, Err: &domain.RateLimitError{RetryAfter: 90500 * time.Millisecond, Usage: testSnapshot(1 << 30)}})

	c, w := uploadContext(t)
	h.Upload(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "91", w.Header().Get("Retry-After"))
	var body handler.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Error)
	assert.Equal(t, int64(91), body.RetryAfterSeconds)
	require.NotNil(t, body.Usage)
	assert.Equal(t, "1.0 GiB of 10 GiB (10.00%)", body.Usage.Storage)
	assert.Empty(t, body.ExceededDimensions)
}

func TestUploadHandler_RateLimitedWithoutSnapshot(t *testing.T) {
	svc := new(mocks.MockUploadService)
	h := newUploadHandler(t, svc, false)
	svc.On("Upload", mock.Anything, mock.Anything).
		Return(nil, &service.StageError{Stage: service.StageRateChecked, Err: &domain.RateLimitError{RetryAfter: time.Minute}})

	c, w := uploadContext(t)
	h.Upload(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "usage")
	assert.EqualValues(t, 60, body["retryAfterSeconds"])
}

func TestUploadHandler_QuotaExceeded(t *testing.T) {
	svc := new(mocks.MockUploadService)
	h := newUploadHandler(t, svc, false)
	decision := &domain.QuotaDecision{
		Exceeded:  []domain.Dimension{domain.DimensionStorage},
		Threshold: 50,
		Projected: testSnapshot(6 << 30),
	}
	svc.On("Upload", mock.Anything, mock.Anything).
		Return(nil, &service.StageError{Stage: service.StageQuotaChecked, Err: &domain.QuotaExceededError{Decision: decision}})

	c, w := uploadContext(t)
	h.Upload(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body handler.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "QUOTA_EXCEEDED", body.Error)
	assert.Equal(t, []domain.Dimension{domain.DimensionStorage}, body.ExceededDimensions)
	require.NotNil(t, body.Usage)
	assert.Equal(t, "6.0 GiB of 10 GiB (60.00%)", body.Usage.Storage)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestUploadHandler_DetailsOutsideProduction(t *testing.T) {
	svc := new(mocks.MockUploadService)
	h := newUploadHandler(t, svc, true)
	svc.On("Upload", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: bucket missing", domain.ErrUploadFailed))

	c, w := uploadContext(t)
	h.Upload(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body handler.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Details, "bucket missing")

	// Client errors never carry details.
	svc2 := new(mocks.MockUploadService)
	h2 := newUploadHandler(t, svc2, true)
	svc2.On("Upload", mock.Anything, mock.Anything).Return(nil, domain.ErrOriginForbidden)
	c, w = uploadContext(t)
	h2.Upload(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	var forbidden map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &forbidden))
	assert.Equal(t, "ORIGIN_FORBIDDEN", forbidden["error"])
	assert.NotContains(t, forbidden, "details")
}
