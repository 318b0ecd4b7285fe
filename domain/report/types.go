package report

import (
	"sort"

	"gocka/domain/core"
	"gocka/domain/outcome"
	"gocka/domain/stats"
)

// Columns is the fixed header of an error table, in output order
var Columns = []string{"model", "dataset_id", "differences", "stem", "true", "false", "relation"}

// LogReport is the aggregate for one input log
type LogReport struct {
	ID        core.ReportID `json:"id"`
	LogID     string        `json:"log_id"`
	ModelName string        `json:"model_name"`
	Language  string        `json:"language"`
	Family    string        `json:"family,omitempty"`

	FactCount int     `json:"fact_count"`
	TrueCount int     `json:"true_count"`
	Accuracy  float64 `json:"accuracy"` // Fraction in [0,1]

	Interval stats.ConfidenceReport `json:"interval"`

	MeanPTrue  float64 `json:"mean_p_true"`
	MeanPFalse float64 `json:"mean_p_false"`
}

// AccuracyPercent is the accuracy scaled to 0..100
func (r LogReport) AccuracyPercent() float64 {
	return 100 * r.Accuracy
}

// HalfWidthPercent is the bootstrap half width scaled to 0..100
func (r LogReport) HalfWidthPercent() float64 {
	return 100 * r.Interval.HalfWidth
}

// ErrorRow is one record where the model preferred the counterfacts
type ErrorRow struct {
	Model      string   `json:"model" db:"model"`
	DatasetID  string   `json:"dataset_id" db:"dataset_id"`
	Difference float64  `json:"differences" db:"difference"`
	Stem       string   `json:"stem" db:"stem"`
	True       string   `json:"true" db:"fact"`
	False      []string `json:"false" db:"-"`
	Relation   string   `json:"relation" db:"relation"`
}

// ErrorTable holds the losing records of one log, most confidently wrong first
type ErrorTable struct {
	LogID    string     `json:"log_id"`
	Model    string     `json:"model"`
	Language string     `json:"language"`
	Rows     []ErrorRow `json:"rows"`
}

// NewErrorTable collects every record whose fact lost and sorts by difference.
func NewErrorTable(log *outcome.ModelLog) ErrorTable {
	table := ErrorTable{
		LogID:    log.LogID,
		Model:    log.ModelName,
		Language: log.Language,
	}
	for _, r := range log.Records {
		if r.FactWins() {
			continue
		}
		table.Rows = append(table.Rows, ErrorRow{
			Model:      log.ModelName,
			DatasetID:  r.DatasetID,
			Difference: r.Difference(),
			Stem:       r.Stem,
			True:       r.Fact,
			False:      append([]string(nil), r.Counterfacts...),
			Relation:   r.Relation,
		})
	}
	table.Sort()
	return table
}

// Sort orders rows ascending by difference; equal differences keep record order.
func (t *ErrorTable) Sort() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Difference < t.Rows[j].Difference
	})
}

// LogFailure records a log that could not be processed
type LogFailure struct {
	LogID string `json:"log_id"`
	Err   error  `json:"-"`
}

func (f LogFailure) Error() string {
	return core.NewLogError(f.LogID, f.Err).Error()
}

// BatchResult is the outcome of one batch run, reports in input order
type BatchResult struct {
	RunID       core.RunID   `json:"run_id"`
	Folder      string       `json:"folder"`
	Reports     []LogReport  `json:"reports"`
	ErrorTables []ErrorTable `json:"error_tables,omitempty"`
	Failures    []LogFailure `json:"failures,omitempty"`
}

// HasFailures reports whether any log failed
func (b *BatchResult) HasFailures() bool {
	return len(b.Failures) > 0
}
