package errortable

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"gocka/domain/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() report.ErrorTable {
	table := report.ErrorTable{
		Model:    "EleutherAI/gpt-neo-125M",
		Language: "english",
		Rows: []report.ErrorRow{
			{Model: "EleutherAI/gpt-neo-125M", DatasetID: "3", Difference: 0.1 - 0.9, Stem: "Steve Jobs is the founder of",
				True: "Apple", False: []string{"Microsoft", "Oracle", "Intel"}, Relation: "P112"},
			{Model: "EleutherAI/gpt-neo-125M", DatasetID: "9", Difference: -1.0 / 3.0, Stem: `Quoted "stem", with comma`,
				True: "Normandy", False: []string{"Manila"}, Relation: ""},
			{Model: "EleutherAI/gpt-neo-125M", DatasetID: "", Difference: -1e-9, Stem: "Line\nbreak",
				True: "Tokyo", False: []string{"London", "Berlin"}, Relation: "P276"},
		},
	}
	return table
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "error-analysis-gpt-neo-125M-english.csv", FileName(sampleTable(), FormatCSV))

	table := report.ErrorTable{Model: "/content/drive/llama/int8/llama-7b/", Language: "czech"}
	assert.Equal(t, "error-analysis-llama-7b-czech.xlsx", FileName(table, FormatXLSX))
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatXLSX} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			dir := filepath.Join(t.TempDir(), "error-analysis")

			store, err := NewStore(format, nil)
			require.NoError(t, err)

			table := sampleTable()
			path, err := store.WriteTable(ctx, dir, table)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, FileName(table, format)), path)

			rows, err := store.ReadTable(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, table.Rows, rows)
		})
	}
}

func TestCSVHeaderVerbatim(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(FormatCSV, nil)
	require.NoError(t, err)

	path, err := store.WriteTable(ctx, t.TempDir(), sampleTable())
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"model", "dataset_id", "differences", "stem", "true", "false", "relation"}, records[0])
	assert.Equal(t, "Microsoft <br> Oracle <br> Intel", records[1][5])
}

func TestReadTable_RejectsWrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("model,differences\ngpt2,-0.1\n"), 0o644))

	store, err := NewStore(FormatCSV, nil)
	require.NoError(t, err)
	_, err = store.ReadTable(context.Background(), path)
	assert.Error(t, err)
}

func TestNewStore_UnsupportedFormat(t *testing.T) {
	_, err := NewStore("parquet", nil)
	assert.Error(t, err)
}

func TestWriteTable_EmptyTableHasHeader(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(FormatCSV, nil)
	require.NoError(t, err)

	path, err := store.WriteTable(ctx, t.TempDir(), report.ErrorTable{Model: "gpt2", Language: "english"})
	require.NoError(t, err)

	rows, err := store.ReadTable(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
