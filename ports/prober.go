package ports

import "context"

// Prober returns the probability a model assigns to target as the next token
// after prompt. Model inference lives entirely behind this call.
type Prober interface {
	Probability(ctx context.Context, model, prompt, target string) (float64, error)
}
