package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/dexcount/pkg/errors"
)

var runColumns = []string{
	"id", "artifact", "variant", "methods", "fields", "classes",
	"declared_methods", "declared_fields", "max_method_count", "status",
	"tree_url", "report_url", "duration_ms", "created_at",
}

type dialectCase struct {
	name      string
	open      func(t *testing.T) (*gorm.DB, sqlmock.Sqlmock)
	insert    string
	selectAll string
	byID      string
}

func openMock(t *testing.T, dialector func(conn gorm.ConnPool) gorm.Dialector) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(dialector(sqlDB), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var dialectCases = []dialectCase{
	{
		name: "MySQL",
		open: func(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
			return openMock(t, func(conn gorm.ConnPool) gorm.Dialector {
				return mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true})
			})
		},
		insert:    "INSERT INTO `dexcount_runs`",
		selectAll: "SELECT \\* FROM `dexcount_runs` WHERE artifact = \\? ORDER BY created_at DESC LIMIT",
		byID:      "SELECT \\* FROM `dexcount_runs` WHERE id = \\?",
	},
	{
		name: "Postgres",
		open: func(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
			return openMock(t, func(conn gorm.ConnPool) gorm.Dialector {
				return postgres.New(postgres.Config{Conn: conn})
			})
		},
		insert:    `INSERT INTO "dexcount_runs"`,
		selectAll: `SELECT \* FROM "dexcount_runs" WHERE artifact = \$1 ORDER BY created_at DESC LIMIT`,
		byID:      `SELECT \* FROM "dexcount_runs" WHERE id = \$1`,
	},
}

func TestDialects_Create(t *testing.T) {
	for _, tc := range dialectCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := tc.open(t)
			repo := NewGormRunRepository(db)

			mock.ExpectBegin()
			mock.ExpectExec(tc.insert).WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()

			run := newRun("run-1", "app.apk", 100, time.Now())
			require.NoError(t, repo.Create(context.Background(), run))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDialects_ListByArtifact(t *testing.T) {
	for _, tc := range dialectCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := tc.open(t)
			repo := NewGormRunRepository(db)

			now := time.Now()
			rows := sqlmock.NewRows(runColumns).
				AddRow("run-2", "app.apk", "release", 120, 40, 12, 0, 0, 64000, "passed", "", "", int64(900), now).
				AddRow("run-1", "app.apk", "release", 100, 30, 10, 0, 0, 64000, "failed", "", "", int64(800), now.Add(-time.Hour))
			mock.ExpectQuery(tc.selectAll).WillReturnRows(rows)

			runs, err := repo.ListByArtifact(context.Background(), "app.apk", 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "run-2", runs[0].ID)
			assert.Equal(t, 120, runs[0].Methods)
			assert.False(t, runs[1].Passed())
			assert.Equal(t, 800*time.Millisecond, runs[1].Duration)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDialects_Errors(t *testing.T) {
	for _, tc := range dialectCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := tc.open(t)
			repo := NewGormRunRepository(db)

			mock.ExpectQuery(tc.byID).WillReturnError(errors.New("connection reset"))
			_, err := repo.GetByID(context.Background(), "run-1")
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetErrorCode(err))

			mock.ExpectQuery(tc.byID).WillReturnRows(sqlmock.NewRows(runColumns))
			_, err = repo.GetByID(context.Background(), "run-1")
			assert.True(t, apperrors.IsNotFound(err))

			mock.ExpectBegin()
			mock.ExpectExec(tc.insert).WillReturnError(errors.New("disk full"))
			mock.ExpectRollback()
			err = repo.Create(context.Background(), newRun("run-1", "app.apk", 1, time.Now()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to save run")

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
