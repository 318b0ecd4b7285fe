package ports

import (
	"context"

	"gocka/domain/core"
	"gocka/domain/report"
)

// RunRecord is the stored header of a batch run
type RunRecord struct {
	ID         core.RunID `json:"id" db:"id"`
	Folder     string     `json:"folder" db:"folder"`
	Resamples  int        `json:"resamples" db:"resamples"`
	Confidence float64    `json:"confidence" db:"confidence"`
	Seed       int64      `json:"seed" db:"seed"`
	Failures   int        `json:"failures" db:"failures"`
	CreatedAt  string     `json:"created_at" db:"created_at"`
}

// ReportRepository stores batch results for later querying
type ReportRepository interface {
	SaveBatch(ctx context.Context, run RunRecord, result *report.BatchResult) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetReports(ctx context.Context, runID core.RunID) ([]report.LogReport, error)
	GetErrorRows(ctx context.Context, reportID core.ReportID) ([]report.ErrorRow, error)
}
