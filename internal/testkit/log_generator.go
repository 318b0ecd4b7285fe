package testkit

import (
	"fmt"
	"math/rand"

	"gocka/domain/outcome"
)

// LogGeneratorConfig configures the synthetic probing log generator
type LogGeneratorConfig struct {
	ModelName      string  `json:"model_name"`
	RecordCount    int     `json:"record_count"`
	Accuracy       float64 `json:"accuracy"` // Probability that a record's fact wins
	CounterfactMax int     `json:"counterfact_max"`
	Seed           int64   `json:"seed"`
}

// DefaultLogGeneratorConfig returns sensible defaults for log generation
func DefaultLogGeneratorConfig() LogGeneratorConfig {
	return LogGeneratorConfig{
		ModelName:      "EleutherAI/gpt-neo-125M",
		RecordCount:    200,
		Accuracy:       0.6,
		CounterfactMax: 3,
		Seed:           42,
	}
}

// LogGenerator generates outcome records with a target win rate
type LogGenerator struct {
	config LogGeneratorConfig
	rng    *rand.Rand
}

// NewLogGenerator creates a new log generator
func NewLogGenerator(config LogGeneratorConfig) *LogGenerator {
	if config.CounterfactMax < 1 {
		config.CounterfactMax = 1
	}
	return &LogGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds a complete model log
func (g *LogGenerator) Generate() *outcome.ModelLog {
	log := &outcome.ModelLog{
		ModelName: g.config.ModelName,
		Records:   make([]outcome.Record, 0, g.config.RecordCount),
	}
	for i := 0; i < g.config.RecordCount; i++ {
		log.Records = append(log.Records, g.generateRecord(i, g.rng.Float64() < g.config.Accuracy))
	}
	return log
}

func (g *LogGenerator) generateRecord(i int, wins bool) outcome.Record {
	n := 1 + g.rng.Intn(g.config.CounterfactMax)
	counterfacts := make([]string, n)
	pFalse := make([]float64, n)
	for j := range counterfacts {
		counterfacts[j] = fmt.Sprintf("counterfact-%d-%d", i, j)
		pFalse[j] = 0.05 + 0.4*g.rng.Float64()
	}

	// keep a clear margin from the counterfact mean so the verdict is unambiguous
	mean := outcome.MeanFalse(pFalse)
	pTrue := mean * (0.1 + 0.8*g.rng.Float64())
	if wins {
		pTrue = mean + 0.01 + 0.5*g.rng.Float64()
	}

	rec := outcome.NewRecord(fmt.Sprintf("stem %d is", i), fmt.Sprintf("fact-%d", i), counterfacts, pTrue, pFalse)
	rec.DatasetID = fmt.Sprintf("%d", i)
	rec.Relation = fmt.Sprintf("P%d", 100+i%7)
	return rec
}

// Log builds a log whose records win or lose in the given order. Losing
// record i has difference -(i+1)/100 so error table order is predictable.
func Log(model string, wins ...bool) *outcome.ModelLog {
	log := &outcome.ModelLog{ModelName: model}
	for i, w := range wins {
		var rec outcome.Record
		if w {
			rec = outcome.NewRecord(fmt.Sprintf("stem %d is", i), fmt.Sprintf("fact-%d", i),
				[]string{"wrong-a", "wrong-b"}, 0.5, []float64{0.1, 0.2})
		} else {
			loss := float64(i+1) / 100
			rec = outcome.NewRecord(fmt.Sprintf("stem %d is", i), fmt.Sprintf("fact-%d", i),
				[]string{"wrong-a", "wrong-b"}, 0.2, []float64{0.2 + loss, 0.2 + loss})
		}
		rec.DatasetID = fmt.Sprintf("%d", i)
		rec.Relation = "P36"
		log.Records = append(log.Records, rec)
	}
	return log
}
