package ports

import (
	"context"

	"gocka/domain/outcome"
)

// LogSource resolves log identifiers to outcome records
type LogSource interface {
	// List returns the log identifiers found under a location, in a stable order
	List(ctx context.Context, location string) ([]string, error)

	// Read loads one log. Language is left for the caller to resolve.
	Read(ctx context.Context, logID string) (*outcome.ModelLog, error)
}

// LogSink persists a model log in the log format LogSource reads
type LogSink interface {
	Write(ctx context.Context, path string, log *outcome.ModelLog) error
}
