package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&CountRunRecord{}))
	return db
}

func newRun(id, artifact string, methods int, at time.Time) *model.CountRun {
	return &model.CountRun{
		ID:             id,
		Artifact:       artifact,
		Variant:        "release",
		Methods:        methods,
		Fields:         methods / 2,
		Classes:        methods / 10,
		MaxMethodCount: 64000,
		Status:         model.RunStatusPassed,
		TreeURL:        "reports/" + id + "/app.dexcount",
		Duration:       1500 * time.Millisecond,
		CreatedAt:      at,
	}
}

func TestGormRunRepository_CreateAndGet(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	run := newRun("run-1", "app-release.apk", 41234, at)
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "app-release.apk", got.Artifact)
	assert.Equal(t, 41234, got.Methods)
	assert.Equal(t, 20617, got.Fields)
	assert.Equal(t, model.RunStatusPassed, got.Status)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestGormRunRepository_CreateDefaults(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	run := &model.CountRun{ID: "run-2", Artifact: "lib.aar", Status: model.RunStatusFailed}
	require.NoError(t, repo.Create(ctx, run))
	assert.False(t, run.CreatedAt.IsZero())

	err := repo.Create(ctx, &model.CountRun{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetErrorCode(err))

	// duplicate primary key
	err = repo.Create(ctx, &model.CountRun{ID: "run-2"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetErrorCode(err))
}

func TestGormRunRepository_GetByID_NotFound(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))

	run, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, run)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestGormRunRepository_List(t *testing.T) {
	repo := NewGormRunRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		artifact := "app.apk"
		if i%2 == 1 {
			artifact = "lib.aar"
		}
		run := newRun(fmt.Sprintf("run-%d", i), artifact, 1000+i, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Create(ctx, run))
	}

	t.Run("Recent", func(t *testing.T) {
		runs, err := repo.ListRecent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, []string{"run-4", "run-3", "run-2"}, ids(runs))
	})

	t.Run("DefaultLimit", func(t *testing.T) {
		runs, err := repo.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, runs, 5)
	})

	t.Run("ByArtifact", func(t *testing.T) {
		runs, err := repo.ListByArtifact(ctx, "lib.aar", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"run-3", "run-1"}, ids(runs))
	})

	t.Run("UnknownArtifact", func(t *testing.T) {
		runs, err := repo.ListByArtifact(ctx, "other.apk", 10)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func ids(runs []*model.CountRun) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}

func TestNoopRunRepository(t *testing.T) {
	var repo RunRepository = NoopRunRepository{}
	ctx := context.Background()

	assert.NoError(t, repo.Create(ctx, newRun("x", "app.apk", 1, time.Now())))

	_, err := repo.GetByID(ctx, "x")
	assert.True(t, apperrors.IsNotFound(err))

	runs, err := repo.ListRecent(ctx, 10)
	assert.NoError(t, err)
	assert.Empty(t, runs)

	runs, err = repo.ListByArtifact(ctx, "app.apk", 10)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}
