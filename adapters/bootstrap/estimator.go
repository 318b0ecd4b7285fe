package bootstrap

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"gocka/domain/core"
	"gocka/domain/stats"
	"gocka/ports"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// DefaultChunkSize is the number of resamples drawn from one derived seed
const DefaultChunkSize = 1000

// Estimator implements the percentile bootstrap for binary correctness sequences
type Estimator struct {
	workers   int // Goroutines drawing resample chunks concurrently
	chunkSize int
}

var _ ports.EstimatorPort = (*Estimator)(nil)

// NewEstimator creates an estimator. workers <= 0 uses GOMAXPROCS.
func NewEstimator(workers int) *Estimator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Estimator{
		workers:   workers,
		chunkSize: DefaultChunkSize,
	}
}

// SetChunkSize changes how many resamples share one derived seed. Results for
// a given source seed depend on the chunk size but never on the worker count.
func (e *Estimator) SetChunkSize(size int) {
	if size < 1 {
		size = 1
	}
	e.chunkSize = size
}

// Estimate draws params.Resamples samples with replacement from results, each
// as long as results, and returns the percentile interval of their means.
func (e *Estimator) Estimate(ctx context.Context, results []int, params stats.BootstrapParams, src *rand.Rand) (stats.ConfidenceReport, error) {
	if err := validateInput(results, params, src); err != nil {
		return stats.ConfidenceReport{}, err
	}

	means, err := e.resampleMeans(ctx, results, params.Resamples, src)
	if err != nil {
		return stats.ConfidenceReport{}, err
	}
	sort.Float64s(means)

	alpha := params.TailMass()
	lower := stats.Percentile(means, 100*alpha)
	median := stats.Percentile(means, 50)
	upper := stats.Percentile(means, 100*(1-alpha))

	report := stats.NewConfidenceReport(lower, median, upper, params, len(results))
	if len(means) > 1 {
		report.StdError = stat.StdDev(means, nil)
	}
	return report, nil
}

func validateInput(results []int, params stats.BootstrapParams, src *rand.Rand) error {
	if len(results) == 0 {
		return core.NewInvalidInputError("results", "must not be empty")
	}
	for i, v := range results {
		if v != 0 && v != 1 {
			return core.NewInvalidInputError("results", fmt.Sprintf("element %d is %d, want 0 or 1", i, v))
		}
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if src == nil {
		return core.NewInvalidInputError("random source", "must not be nil")
	}
	return nil
}

// resampleMeans fills one mean per resample. Chunk seeds are drawn from src
// in chunk order before any work starts, so the multiset of means is fixed by
// src alone.
func (e *Estimator) resampleMeans(ctx context.Context, results []int, resamples int, src *rand.Rand) ([]float64, error) {
	numChunks := (resamples + e.chunkSize - 1) / e.chunkSize
	seeds := make([]int64, numChunks)
	for i := range seeds {
		seeds[i] = src.Int63()
	}

	means := make([]float64, resamples)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for c := 0; c < numChunks; c++ {
		start := c * e.chunkSize
		end := min(start+e.chunkSize, resamples)
		seed := seeds[c]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			drawChunk(results, means[start:end], rand.New(rand.NewSource(seed)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return means, nil
}

// drawChunk writes the mean of one bootstrap sample into each slot of out
func drawChunk(results []int, out []float64, rng *rand.Rand) {
	n := len(results)
	for i := range out {
		ones := 0
		for j := 0; j < n; j++ {
			ones += results[rng.Intn(n)]
		}
		out[i] = float64(ones) / float64(n)
	}
}
