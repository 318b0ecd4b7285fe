package ports

import (
	"context"
	"math/rand"

	"gocka/domain/stats"
)

// EstimatorPort computes a percentile bootstrap interval for a 0/1 sequence
type EstimatorPort interface {
	Estimate(ctx context.Context, results []int, params stats.BootstrapParams, src *rand.Rand) (stats.ConfidenceReport, error)
}
