package mocks

import (
	"context"

	"github.com/dukex/payflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of engine.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) AccountUpdated(ctx context.Context, owner, account string) error {
	args := m.Called(ctx, owner, account)

	return args.Error(0)
}

func (m *MockNotifier) WorkflowChanged(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}
