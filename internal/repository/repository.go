// Package repository stores the history of count runs so that method count
// growth can be followed across builds.
package repository

import (
	"context"

	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
)

// RunRepository persists count runs.
type RunRepository interface {
	// Create stores a finished run. CreatedAt is filled in when zero.
	Create(ctx context.Context, run *model.CountRun) error

	// GetByID returns the run with the given ID.
	GetByID(ctx context.Context, id string) (*model.CountRun, error)

	// ListRecent returns the latest runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*model.CountRun, error)

	// ListByArtifact returns the latest runs of one artifact, newest first.
	ListByArtifact(ctx context.Context, artifact string, limit int) ([]*model.CountRun, error)
}

// NoopRunRepository is used when history is disabled.
type NoopRunRepository struct{}

func (NoopRunRepository) Create(context.Context, *model.CountRun) error { return nil }

func (NoopRunRepository) GetByID(_ context.Context, id string) (*model.CountRun, error) {
	return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %s (history is disabled)", id)
}

func (NoopRunRepository) ListRecent(context.Context, int) ([]*model.CountRun, error) {
	return nil, nil
}

func (NoopRunRepository) ListByArtifact(context.Context, string, int) ([]*model.CountRun, error) {
	return nil, nil
}
