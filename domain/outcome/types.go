package outcome

import (
	"fmt"
	"math"
	"strings"

	"gocka/domain/core"

	"github.com/montanaflynn/stats"
)

// EntitySeparator joins multiple stems or counterfacts inside a single field
const EntitySeparator = " <br> "

// Record is one evaluated (stem, fact) pair with the probabilities the model
// assigned to the fact and to each counterfact.
type Record struct {
	Stem          string    `json:"stem"`
	Fact          string    `json:"fact"`
	Counterfacts  []string  `json:"counterfact"`
	PTrue         float64   `json:"p_true"`
	PFalseList    []float64 `json:"p_false_list"`
	PFalseAverage float64   `json:"p_false_average"`

	// Wins is the upstream verdict when the log recorded one
	Wins *bool `json:"-"`

	// Opaque metadata, carried through untouched
	Subject   string `json:"subject,omitempty"`
	Object    string `json:"object,omitempty"`
	Relation  string `json:"relation,omitempty"`
	DatasetID string `json:"dataset_id,omitempty"`
}

// NewRecord builds a record and derives PFalseAverage from the counterfact probabilities.
func NewRecord(stem, fact string, counterfacts []string, pTrue float64, pFalse []float64) Record {
	return Record{
		Stem:          stem,
		Fact:          fact,
		Counterfacts:  counterfacts,
		PTrue:         pTrue,
		PFalseList:    pFalse,
		PFalseAverage: MeanFalse(pFalse),
	}
}

// MeanFalse is the arithmetic mean of the counterfact probabilities, 0 for none.
func MeanFalse(pFalse []float64) float64 {
	mean, err := stats.Mean(pFalse)
	if err != nil {
		return 0
	}
	return mean
}

// FactWins reports whether the true completion outscored the mean counterfact.
func (r Record) FactWins() bool {
	if r.Wins != nil {
		return *r.Wins
	}
	return r.PTrue > r.PFalseAverage
}

// Difference is p_true minus the mean counterfact probability; negative for losses.
func (r Record) Difference() float64 {
	return r.PTrue - r.PFalseAverage
}

// Validate checks the fields every downstream computation relies on.
func (r Record) Validate(index int) error {
	if strings.TrimSpace(r.Stem) == "" {
		return core.NewMalformedRecordError(index, "missing stem")
	}
	if strings.TrimSpace(r.Fact) == "" {
		return core.NewMalformedRecordError(index, "missing fact")
	}
	if len(r.Counterfacts) == 0 {
		return core.NewMalformedRecordError(index, "missing counterfacts")
	}
	if len(r.PFalseList) != len(r.Counterfacts) {
		return core.NewMalformedRecordError(index,
			fmt.Sprintf("%d false probabilities for %d counterfacts", len(r.PFalseList), len(r.Counterfacts)))
	}
	if !validProbability(r.PTrue) {
		return core.NewMalformedRecordError(index, fmt.Sprintf("invalid p_true %v", r.PTrue))
	}
	for i, p := range r.PFalseList {
		if !validProbability(p) {
			return core.NewMalformedRecordError(index, fmt.Sprintf("invalid p_false[%d] %v", i, p))
		}
	}
	return nil
}

func validProbability(p float64) bool {
	return p >= 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// ModelLog is the full set of outcome records produced for one model run.
type ModelLog struct {
	LogID     string   `json:"log_id"`
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Records   []Record `json:"records"`
}

// Validate checks every record, stopping at the first malformed one.
func (l *ModelLog) Validate() error {
	if strings.TrimSpace(l.ModelName) == "" {
		return core.NewMalformedRecordError(-1, "log has no model name")
	}
	for i, r := range l.Records {
		if err := r.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// CorrectnessSequence maps records to 1 (fact wins) or 0, preserving record order.
func CorrectnessSequence(records []Record) []int {
	seq := make([]int, len(records))
	for i, r := range records {
		if r.FactWins() {
			seq[i] = 1
		}
	}
	return seq
}

// SplitEntities splits a field that may hold several values joined by EntitySeparator.
func SplitEntities(field string) []string {
	if strings.Contains(field, EntitySeparator) {
		return strings.Split(field, EntitySeparator)
	}
	return []string{field}
}

// JoinEntities is the inverse of SplitEntities.
func JoinEntities(values []string) string {
	return strings.Join(values, EntitySeparator)
}
