package scrape

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockJobClient is a mock implementation of the JobClient interface for testing.
type MockJobClient struct {
	mock.Mock
}

// Submit is the mock implementation of the Submit method.
func (m *MockJobClient) Submit(ctx context.Context, subject Subject) (Handle, error) {
	args := m.Called(ctx, subject)
	return args.Get(0).(Handle), args.Error(1) //nolint:wrapcheck
}

// PollStatus is the mock implementation of the PollStatus method.
func (m *MockJobClient) PollStatus(ctx context.Context, handle Handle) (Status, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(Status), args.Error(1) //nolint:wrapcheck
}

// FetchResult is the mock implementation of the FetchResult method.
func (m *MockJobClient) FetchResult(ctx context.Context, handle Handle) (Result, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(Result), args.Error(1) //nolint:wrapcheck
}
