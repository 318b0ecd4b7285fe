package stats

import (
	"math"

	"gocka/domain/core"
)

// Defaults for the bootstrap estimator
const (
	DefaultResamples  = 10000
	DefaultConfidence = 0.95
)

// BootstrapParams controls a percentile bootstrap run
type BootstrapParams struct {
	Resamples  int     `json:"resamples"`
	Confidence float64 `json:"confidence"`
}

// DefaultBootstrapParams returns B=10000 at 95% confidence
func DefaultBootstrapParams() BootstrapParams {
	return BootstrapParams{
		Resamples:  DefaultResamples,
		Confidence: DefaultConfidence,
	}
}

// Validate rejects non-positive resample counts and confidence levels outside (0,1)
func (p BootstrapParams) Validate() error {
	if p.Resamples <= 0 {
		return core.NewInvalidInputError("resamples", "must be positive")
	}
	if math.IsNaN(p.Confidence) || p.Confidence <= 0 || p.Confidence >= 1 {
		return core.NewInvalidInputError("confidence", "must lie strictly between 0 and 1")
	}
	return nil
}

// TailMass is the probability mass left outside the interval on each side
func (p BootstrapParams) TailMass() float64 {
	return (1 - p.Confidence) / 2
}

// ConfidenceReport is the percentile interval of a bootstrapped proportion.
// INVARIANTS:
// - Lower <= Median <= Upper
// - HalfWidth >= 0
type ConfidenceReport struct {
	Lower     float64 `json:"lower"`
	Median    float64 `json:"median"`
	Upper     float64 `json:"upper"`
	HalfWidth float64 `json:"half_width"`

	Confidence float64 `json:"confidence"`
	Resamples  int     `json:"resamples"`
	SampleSize int     `json:"sample_size"`
	StdError   float64 `json:"std_error"` // Standard deviation of the bootstrap means
}

// NewConfidenceReport derives the half width from the three percentiles
func NewConfidenceReport(lower, median, upper float64, params BootstrapParams, sampleSize int) ConfidenceReport {
	return ConfidenceReport{
		Lower:      lower,
		Median:     median,
		Upper:      upper,
		HalfWidth:  ((median - lower) + (upper - median)) / 2,
		Confidence: params.Confidence,
		Resamples:  params.Resamples,
		SampleSize: sampleSize,
	}
}

// Percentile returns the p-th percentile (0..100) of an ascending slice,
// interpolating linearly between the two nearest order statistics.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
