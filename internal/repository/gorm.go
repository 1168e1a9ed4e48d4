package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
)

const defaultListLimit = 20

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Create inserts the run.
func (r *GormRunRepository) Create(ctx context.Context, run *model.CountRun) error {
	if run.ID == "" {
		return apperrors.New(apperrors.CodeDatabaseError, "run ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(recordFromModel(run)).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save run", err)
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *GormRunRepository) GetByID(ctx context.Context, id string) (*model.CountRun, error) {
	var record CountRunRecord

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "run not found: %s", id)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get run", err)
	}
	return record.ToModel(), nil
}

// ListRecent returns the latest runs across all artifacts.
func (r *GormRunRepository) ListRecent(ctx context.Context, limit int) ([]*model.CountRun, error) {
	return list(r.db.WithContext(ctx), limit)
}

// ListByArtifact returns the latest runs of one artifact.
func (r *GormRunRepository) ListByArtifact(ctx context.Context, artifact string, limit int) ([]*model.CountRun, error) {
	return list(r.db.WithContext(ctx).Where("artifact = ?", artifact), limit)
}

func list(q *gorm.DB, limit int) ([]*model.CountRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var records []CountRunRecord
	err := q.Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to query runs", err)
	}

	runs := make([]*model.CountRun, len(records))
	for i := range records {
		runs[i] = records[i].ToModel()
	}
	return runs, nil
}
