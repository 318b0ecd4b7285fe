package outcome

import (
	"math"
	"testing"

	"gocka/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_MeanOfCounterfacts(t *testing.T) {
	r := NewRecord("The 2020 Olympics were held in", "Tokyo",
		[]string{"London", "Berlin", "Chicago"}, 0.3, []float64{0.1, 0.2, 0.6})

	assert.InDelta(t, 0.3, r.PFalseAverage, 1e-12)
	// p_true equal to the mean does not win
	assert.False(t, r.FactWins())
	assert.InDelta(t, 0.0, r.Difference(), 1e-12)
}

func TestFactWins_RecordedFlagTakesPrecedence(t *testing.T) {
	r := NewRecord("s", "f", []string{"c"}, 0.9, []float64{0.1})
	require.True(t, r.FactWins())

	lost := false
	r.Wins = &lost
	assert.False(t, r.FactWins())
}

func TestRecordValidate(t *testing.T) {
	valid := NewRecord("s", "f", []string{"a", "b"}, 0.5, []float64{0.1, 0.2})
	require.NoError(t, valid.Validate(0))

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"missing stem", func(r *Record) { r.Stem = " " }},
		{"missing fact", func(r *Record) { r.Fact = "" }},
		{"no counterfacts", func(r *Record) { r.Counterfacts = nil; r.PFalseList = nil }},
		{"length mismatch", func(r *Record) { r.PFalseList = []float64{0.1} }},
		{"negative p_true", func(r *Record) { r.PTrue = -0.1 }},
		{"nan p_false", func(r *Record) { r.PFalseList = []float64{0.1, math.NaN()} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.Counterfacts = append([]string(nil), valid.Counterfacts...)
			r.PFalseList = append([]float64(nil), valid.PFalseList...)
			tt.mutate(&r)
			err := r.Validate(3)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrMalformedRecord)
		})
	}
}

func TestCorrectnessSequence_PreservesOrder(t *testing.T) {
	records := []Record{
		NewRecord("a", "x", []string{"y"}, 0.9, []float64{0.1}),
		NewRecord("b", "x", []string{"y"}, 0.1, []float64{0.9}),
		NewRecord("c", "x", []string{"y"}, 0.5, []float64{0.4}),
	}
	assert.Equal(t, []int{1, 0, 1}, CorrectnessSequence(records))
}

func TestSplitJoinEntities(t *testing.T) {
	assert.Equal(t, []string{"London"}, SplitEntities("London"))
	parts := SplitEntities("London <br> Berlin <br> Chicago")
	assert.Equal(t, []string{"London", "Berlin", "Chicago"}, parts)
	assert.Equal(t, "London <br> Berlin <br> Chicago", JoinEntities(parts))
}
