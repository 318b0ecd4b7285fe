package logfile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocka/domain/outcome"
	"gocka/ports"

	"github.com/montanaflynn/stats"
)

// logRecord is the on-disk shape of one outcome record
type logRecord struct {
	Stem          string    `json:"stem"`
	Fact          string    `json:"fact"`
	Counterfact   []string  `json:"counterfact"`
	PTrue         float64   `json:"p_true"`
	PFalseList    []float64 `json:"p_false_list"`
	PFalseAverage float64   `json:"p_false_average"`
	Ratio         float64   `json:"p_true / p_false_average"`
	Wins          string    `json:"p_true > p_false_average"`
	Subject       string    `json:"subject,omitempty"`
	Object        string    `json:"object,omitempty"`
	Relation      string    `json:"relation,omitempty"`
	DatasetID     string    `json:"dataset_id,omitempty"`
}

type logDocument struct {
	Datetime  string                 `json:"curr_datetime"`
	ModelName []string               `json:"model_name"`
	Summary   map[string]string      `json:"score_dict_summary"`
	Full      map[string][]logRecord `json:"score_dict_full"`
}

// Writer persists model logs in the layout FolderSource reads
type Writer struct {
	now func() time.Time
}

var _ ports.LogSink = (*Writer)(nil)

// NewWriter creates a log writer
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// Write encodes log to path, creating parent directories
func (w *Writer) Write(ctx context.Context, path string, log *outcome.ModelLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := w.Encode(log)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write log %s: %w", path, err)
	}
	return nil
}

// Encode renders the log document
func (w *Writer) Encode(log *outcome.ModelLog) ([]byte, error) {
	key := strings.ToLower(log.ModelName)
	records := make([]logRecord, 0, len(log.Records))
	for _, r := range log.Records {
		records = append(records, logRecord{
			Stem:          r.Stem,
			Fact:          r.Fact,
			Counterfact:   r.Counterfacts,
			PTrue:         r.PTrue,
			PFalseList:    r.PFalseList,
			PFalseAverage: r.PFalseAverage,
			Ratio:         round4(r.PTrue / (r.PFalseAverage + 1e-13)),
			Wins:          pythonBool(r.FactWins()),
			Subject:       r.Subject,
			Object:        r.Object,
			Relation:      r.Relation,
			DatasetID:     r.DatasetID,
		})
	}

	doc := logDocument{
		Datetime:  w.now().Format("2006-01-02 15:04:05.000000"),
		ModelName: []string{log.ModelName},
		Summary:   map[string]string{key: summarize(log.Records)},
		Full:      map[string][]logRecord{key: records},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode log: %w", err)
	}
	return data, nil
}

func summarize(records []outcome.Record) string {
	wins := 0
	pTrues := make([]float64, 0, len(records))
	pFalses := make([]float64, 0, len(records))
	for _, r := range records {
		if r.FactWins() {
			wins++
		}
		pTrues = append(pTrues, r.PTrue)
		pFalses = append(pFalses, r.PFalseAverage)
	}
	meanTrue, _ := stats.Mean(pTrues)
	meanFalse, _ := stats.Mean(pFalses)

	return fmt.Sprintf("This model predicted %d/%d facts at a higher prob than the given counterfactual. "+
		"In addition, the mean p_true was %v while the mean p_false_average was %v.",
		wins, len(records), round4(meanTrue), round4(meanFalse))
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r, err := stats.Round(v, 4)
	if err != nil {
		return 0
	}
	return r
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
