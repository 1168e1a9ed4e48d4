// Package mock provides testify mocks of the storage and history
// interfaces.
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dexcount/pkg/model"
)

// MockRunRepository is a mock implementation of repository.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockRunRepository) Create(ctx context.Context, run *model.CountRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// GetByID mocks the GetByID method.
func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*model.CountRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CountRun), args.Error(1)
}

// ListRecent mocks the ListRecent method.
func (m *MockRunRepository) ListRecent(ctx context.Context, limit int) ([]*model.CountRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CountRun), args.Error(1)
}

// ListByArtifact mocks the ListByArtifact method.
func (m *MockRunRepository) ListByArtifact(ctx context.Context, artifact string, limit int) ([]*model.CountRun, error) {
	args := m.Called(ctx, artifact, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CountRun), args.Error(1)
}

// ExpectCreate expects a run with the given status to be saved.
func (m *MockRunRepository) ExpectCreate(status model.RunStatus, err error) *mock.Call {
	return m.On("Create", mock.Anything, mock.MatchedBy(func(r *model.CountRun) bool {
		return r.Status == status
	})).Return(err)
}
