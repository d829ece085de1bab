package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"imguard/internal/port"
)

// MockObjectStorage is a mock implementation of port.ObjectStorage. The body
// of every Put is drained into Bodies so tests can inspect what was written.
type MockObjectStorage struct {
	mock.Mock
	Bodies [][]byte
}

func (m *MockObjectStorage) Put(ctx context.Context, input port.PutInput) (*port.PutOutput, error) {
	if input.Body != nil {
		data, _ := io.ReadAll(input.Body)
		m.Bodies = append(m.Bodies, data)
	}
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.PutOutput), args.Error(1)
}
