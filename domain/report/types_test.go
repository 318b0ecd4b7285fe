package report

import (
	"testing"

	"gocka/domain/outcome"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorTable_SortedLosersOnly(t *testing.T) {
	lose := func(stem string, pTrue, pFalse float64) outcome.Record {
		r := outcome.NewRecord(stem, "fact", []string{"a", "b"}, pTrue, []float64{pFalse, pFalse})
		r.DatasetID = stem + "-id"
		r.Relation = "P17"
		return r
	}

	log := &outcome.ModelLog{
		LogID:     "en-gpt2.json",
		ModelName: "gpt2",
		Language:  "english",
		Records: []outcome.Record{
			lose("mild", 0.4, 0.5),
			outcome.NewRecord("winner", "fact", []string{"a"}, 0.9, []float64{0.1}),
			lose("severe", 0.01, 0.9),
			lose("tie-first", 0.2, 0.4),
			lose("tie-second", 0.2, 0.4),
		},
	}

	table := NewErrorTable(log)
	require.Len(t, table.Rows, 4)

	stems := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		stems[i] = row.Stem
		assert.Equal(t, "gpt2", row.Model)
		assert.Equal(t, "P17", row.Relation)
		assert.Equal(t, []string{"a", "b"}, row.False)
	}
	assert.Equal(t, []string{"severe", "tie-first", "tie-second", "mild"}, stems)
	assert.InDelta(t, 0.01-0.9, table.Rows[0].Difference, 1e-12)
}

func TestLogReportPercentages(t *testing.T) {
	r := LogReport{Accuracy: 0.75}
	r.Interval.HalfWidth = 0.0125
	assert.InDelta(t, 75.0, r.AccuracyPercent(), 1e-12)
	assert.InDelta(t, 1.25, r.HalfWidthPercent(), 1e-12)
}

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{"model", "dataset_id", "differences", "stem", "true", "false", "relation"}, Columns)
}
