package sqlstore

import (
	"context"
	"testing"

	"gocka/domain/core"
	"gocka/domain/report"
	"gocka/domain/stats"
	"gocka/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *ReportRepository {
	t.Helper()
	db, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReportRepository(db)
}

func sampleBatch() (ports.RunRecord, *report.BatchResult) {
	runID := core.NewRunID()
	interval := stats.ConfidenceReport{
		Lower: 0.5, Median: 0.75, Upper: 1.0, HalfWidth: 0.25,
		Confidence: 0.95, Resamples: 1000, SampleSize: 4, StdError: 0.2,
	}
	result := &report.BatchResult{
		RunID:  runID,
		Folder: "/logs",
		Reports: []report.LogReport{
			{ID: core.NewReportID(), LogID: "/logs/en-gpt2.json", ModelName: "gpt2", Language: "english",
				Family: "GPT", FactCount: 4, TrueCount: 3, Accuracy: 0.75, Interval: interval,
				MeanPTrue: 0.3, MeanPFalse: 0.2},
			{ID: core.NewReportID(), LogID: "/logs/fr-gpt2.json", ModelName: "gpt2", Language: "french",
				FactCount: 4, TrueCount: 4, Accuracy: 1, Interval: interval},
		},
		ErrorTables: []report.ErrorTable{
			{LogID: "/logs/en-gpt2.json", Model: "gpt2", Language: "english", Rows: []report.ErrorRow{
				{Model: "gpt2", DatasetID: "12", Difference: -0.4, Stem: "The capital of France is",
					True: "Paris", False: []string{"Rome", "Madrid"}, Relation: "P36"},
			}},
			{LogID: "/logs/fr-gpt2.json", Model: "gpt2", Language: "french"},
		},
	}
	run := ports.RunRecord{
		ID: runID, Folder: "/logs", Resamples: 1000, Confidence: 0.95, Seed: 42,
		CreatedAt: "2024-05-01T10:00:00Z",
	}
	return run, result
}

func TestSaveBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	run, result := sampleBatch()

	require.NoError(t, repo.SaveBatch(ctx, run, result))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run, runs[0])

	reports, err := repo.GetReports(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, result.Reports[0], reports[0])
	assert.Equal(t, "/logs/fr-gpt2.json", reports[1].LogID, "input order preserved")

	rows, err := repo.GetErrorRows(ctx, reports[0].ID)
	require.NoError(t, err)
	assert.Equal(t, result.ErrorTables[0].Rows, rows)

	rows, err = repo.GetErrorRows(ctx, reports[1].ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	older, olderResult := sampleBatch()
	older.CreatedAt = "2024-01-01T00:00:00Z"
	newer, newerResult := sampleBatch()
	newer.CreatedAt = "2024-02-01T00:00:00Z"

	require.NoError(t, repo.SaveBatch(ctx, older, olderResult))
	require.NoError(t, repo.SaveBatch(ctx, newer, newerResult))

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	runs, err = repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveBatch_DuplicateRunRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	run, result := sampleBatch()
	require.NoError(t, repo.SaveBatch(ctx, run, result))

	// same run id again must fail without leaving partial rows behind
	_, second := sampleBatch()
	err := repo.SaveBatch(ctx, run, second)
	assert.Error(t, err)

	reports, err := repo.GetReports(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestGetReports_UnknownRun(t *testing.T) {
	repo := openTestRepo(t)
	reports, err := repo.GetReports(context.Background(), core.NewRunID())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
