package ports

import (
	"context"

	"gocka/domain/report"
)

// ErrorTableWriter persists an error table and returns where it went
type ErrorTableWriter interface {
	WriteTable(ctx context.Context, dir string, table report.ErrorTable) (string, error)
}

// ErrorTableReader loads a previously written error table
type ErrorTableReader interface {
	ReadTable(ctx context.Context, path string) ([]report.ErrorRow, error)
}

// SummaryWriter persists the human-readable batch summary
type SummaryWriter interface {
	WriteSummary(ctx context.Context, dir string, result *report.BatchResult) ([]string, error)
}
