package repository

import (
	"time"

	"github.com/dexcount/pkg/model"
)

// CountRunRecord represents the dexcount_runs table.
type CountRunRecord struct {
	ID              string    `gorm:"column:id;primaryKey;type:varchar(36)"`
	Artifact        string    `gorm:"column:artifact;type:varchar(255);index"`
	Variant         string    `gorm:"column:variant;type:varchar(128)"`
	Methods         int       `gorm:"column:methods"`
	Fields          int       `gorm:"column:fields"`
	Classes         int       `gorm:"column:classes"`
	DeclaredMethods int       `gorm:"column:declared_methods"`
	DeclaredFields  int       `gorm:"column:declared_fields"`
	MaxMethodCount  int       `gorm:"column:max_method_count"`
	Status          string    `gorm:"column:status;type:varchar(16)"`
	TreeURL         string    `gorm:"column:tree_url;type:varchar(1024)"`
	ReportURL       string    `gorm:"column:report_url;type:varchar(1024)"`
	DurationMs      int64     `gorm:"column:duration_ms"`
	CreatedAt       time.Time `gorm:"column:created_at;index"`
}

// TableName returns the table name for CountRunRecord.
func (CountRunRecord) TableName() string {
	return "dexcount_runs"
}

// ToModel converts the record to model.CountRun.
func (r *CountRunRecord) ToModel() *model.CountRun {
	return &model.CountRun{
		ID:              r.ID,
		Artifact:        r.Artifact,
		Variant:         r.Variant,
		Methods:         r.Methods,
		Fields:          r.Fields,
		Classes:         r.Classes,
		DeclaredMethods: r.DeclaredMethods,
		DeclaredFields:  r.DeclaredFields,
		MaxMethodCount:  r.MaxMethodCount,
		Status:          model.RunStatus(r.Status),
		TreeURL:         r.TreeURL,
		ReportURL:       r.ReportURL,
		Duration:        time.Duration(r.DurationMs) * time.Millisecond,
		CreatedAt:       r.CreatedAt,
	}
}

// recordFromModel converts a model.CountRun to its table row.
func recordFromModel(run *model.CountRun) *CountRunRecord {
	return &CountRunRecord{
		ID:              run.ID,
		Artifact:        run.Artifact,
		Variant:         run.Variant,
		Methods:         run.Methods,
		Fields:          run.Fields,
		Classes:         run.Classes,
		DeclaredMethods: run.DeclaredMethods,
		DeclaredFields:  run.DeclaredFields,
		MaxMethodCount:  run.MaxMethodCount,
		Status:          string(run.Status),
		TreeURL:         run.TreeURL,
		ReportURL:       run.ReportURL,
		DurationMs:      run.Duration.Milliseconds(),
		CreatedAt:       run.CreatedAt,
	}
}
