package handler

import "imguard/internal/service"

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	URL            string                  `json:"url"`
	Usage          service.UsageSummary    `json:"usage"`
	ProcessingMeta *service.ProcessingMeta `json:"processingMeta,omitempty"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Source string `json:"source,omitempty" example:"redis"`
	Error  string `json:"error,omitempty"`
}
