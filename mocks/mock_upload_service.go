package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"imguard/internal/service"
)

// MockUploadService is a mock implementation of service.UploadService.
type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) Upload(ctx context.Context, req *service.UploadRequest) (*service.UploadResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}
