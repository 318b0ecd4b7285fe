package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocka/adapters/bootstrap"
	"gocka/adapters/errortable"
	"gocka/adapters/logfile"
	"gocka/adapters/rng"
	"gocka/domain/architecture"
	"gocka/domain/core"
	"gocka/domain/outcome"
	"gocka/domain/report"
	"gocka/domain/stats"
	"gocka/internal/testkit"
	"gocka/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations for testing
type MockLogSource struct {
	mock.Mock
}

func (m *MockLogSource) List(ctx context.Context, location string) ([]string, error) {
	args := m.Called(ctx, location)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockLogSource) Read(ctx context.Context, logID string) (*outcome.ModelLog, error) {
	args := m.Called(ctx, logID)
	log, _ := args.Get(0).(*outcome.ModelLog)
	return log, args.Error(1)
}

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) SaveBatch(ctx context.Context, run ports.RunRecord, result *report.BatchResult) error {
	return m.Called(ctx, run, result).Error(0)
}

func (m *MockReportRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]ports.RunRecord), args.Error(1)
}

func (m *MockReportRepository) GetReports(ctx context.Context, runID core.RunID) ([]report.LogReport, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]report.LogReport), args.Error(1)
}

func (m *MockReportRepository) GetErrorRows(ctx context.Context, reportID core.ReportID) ([]report.ErrorRow, error) {
	args := m.Called(ctx, reportID)
	return args.Get(0).([]report.ErrorRow), args.Error(1)
}

func testOptions() ReportOptions {
	opts := DefaultReportOptions()
	opts.Params = stats.BootstrapParams{Resamples: 2000, Confidence: 0.95}
	opts.WriteErrors = true
	return opts
}

func newFolderService(opts ReportOptions) *ReportService {
	return NewReportService(logfile.NewFolderSource(nil), bootstrap.NewEstimator(2), rng.NewSeededAdapter(), opts, nil)
}

func TestGenerate_ThreeCorrectOneIncorrect(t *testing.T) {
	kit := testkit.NewTestKit(t.TempDir())
	log := testkit.Log("EleutherAI/gpt-neo-125M", true, true, false, true)
	path, err := kit.WriteLog("en-gpt-neo", log)
	require.NoError(t, err)

	result, err := newFolderService(testOptions()).Generate(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.False(t, result.HasFailures())

	rep := result.Reports[0]
	assert.Equal(t, 4, rep.FactCount)
	assert.Equal(t, 3, rep.TrueCount)
	assert.InDelta(t, 75.0, rep.AccuracyPercent(), 1e-9)
	assert.Equal(t, "english", rep.Language)
	assert.Equal(t, string(architecture.FamilyEleutherAI), rep.Family)
	assert.LessOrEqual(t, rep.Interval.Lower, rep.Interval.Median)
	assert.LessOrEqual(t, rep.Interval.Median, rep.Interval.Upper)

	require.Len(t, result.ErrorTables, 1)
	rows := result.ErrorTables[0].Rows
	require.Len(t, rows, 1)
	loser := log.Records[2]
	assert.InDelta(t, loser.PTrue-outcome.MeanFalse(loser.PFalseList), rows[0].Difference, 1e-12)
	assert.Equal(t, loser.Stem, rows[0].Stem)
	assert.Equal(t, loser.Counterfacts, rows[0].False)
	assert.Equal(t, "2", rows[0].DatasetID)
}

func TestGenerate_UnknownLanguageFailsBeforeRead(t *testing.T) {
	source := new(MockLogSource)

	opts := testOptions()
	opts.FailFast = true
	svc := NewReportService(source, bootstrap.NewEstimator(1), rng.NewSeededAdapter(), opts, nil)

	result, err := svc.Generate(context.Background(), []string{"/logs/xx-gpt2.json"})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrUnknownLanguage)

	var logErr *core.LogError
	require.ErrorAs(t, err, &logErr)
	assert.Equal(t, "/logs/xx-gpt2.json", logErr.LogID)

	source.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
}

func TestGenerate_CollectsFailuresInOrder(t *testing.T) {
	kit := testkit.NewTestKit(t.TempDir())
	good, err := kit.WriteLog("en-gpt2", testkit.Log("gpt2", true, false))
	require.NoError(t, err)
	unknown, err := kit.WriteLog("xx-gpt2", testkit.Log("gpt2", true))
	require.NoError(t, err)
	empty, err := kit.WriteRaw("fr-gpt2", `{"model_name": ["gpt2"], "score_dict_full": {"gpt2": []}}`)
	require.NoError(t, err)
	malformed, err := kit.WriteRaw("de-gpt2", `{"model_name": ["gpt2"], "score_dict_full": {"gpt2": [{"stem": "s"}]}}`)
	require.NoError(t, err)
	alsoGood, err := kit.WriteLog("it-gpt2", testkit.Log("gpt2", true, true))
	require.NoError(t, err)

	logIDs := []string{good, unknown, empty, malformed, alsoGood}
	result, err := newFolderService(testOptions()).Generate(context.Background(), logIDs)
	require.NoError(t, err)

	require.Len(t, result.Reports, 2)
	assert.Equal(t, good, result.Reports[0].LogID)
	assert.Equal(t, alsoGood, result.Reports[1].LogID)

	require.Len(t, result.Failures, 3)
	assert.Equal(t, unknown, result.Failures[0].LogID)
	assert.ErrorIs(t, result.Failures[0].Err, core.ErrUnknownLanguage)
	assert.Equal(t, empty, result.Failures[1].LogID)
	assert.ErrorIs(t, result.Failures[1].Err, core.ErrEmptyDataset)
	assert.Equal(t, malformed, result.Failures[2].LogID)
	assert.ErrorIs(t, result.Failures[2].Err, core.ErrMalformedRecord)
	assert.Contains(t, result.Failures[2].Error(), malformed)
}

func TestGenerate_FailFastStopsAtFirstFailure(t *testing.T) {
	kit := testkit.NewTestKit(t.TempDir())
	empty, err := kit.WriteRaw("fr-gpt2", `{"model_name": ["gpt2"], "score_dict_full": {"gpt2": []}}`)
	require.NoError(t, err)
	good, err := kit.WriteLog("en-gpt2", testkit.Log("gpt2", true))
	require.NoError(t, err)

	opts := testOptions()
	opts.FailFast = true
	_, err = newFolderService(opts).Generate(context.Background(), []string{empty, good})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmptyDataset)
	assert.Contains(t, err.Error(), empty)
}

func TestGenerate_FailFastReportsLowestIndexFailure(t *testing.T) {
	source := new(MockLogSource)
	started := make(chan struct{})

	// the first log only fails after the second one has stopped the batch
	source.On("Read", mock.Anything, "/logs/en-a.json").Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, core.NewMalformedRecordError(7, "missing p_true"))
	source.On("Read", mock.Anything, "/logs/fr-b.json").Run(func(args mock.Arguments) {
		<-started
	}).Return(nil, core.NewMalformedRecordError(0, "missing stem"))

	opts := testOptions()
	opts.FailFast = true
	opts.Workers = 2
	svc := NewReportService(source, bootstrap.NewEstimator(1), rng.NewSeededAdapter(), opts, nil)

	_, err := svc.Generate(context.Background(), []string{"/logs/en-a.json", "/logs/fr-b.json"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)

	var logErr *core.LogError
	require.ErrorAs(t, err, &logErr)
	assert.Equal(t, "/logs/en-a.json", logErr.LogID)
	assert.Contains(t, err.Error(), "record 7")
}

func TestGenerate_InvalidParamsAlwaysAbort(t *testing.T) {
	kit := testkit.NewTestKit(t.TempDir())
	path, err := kit.WriteLog("en-gpt2", testkit.Log("gpt2", true))
	require.NoError(t, err)

	opts := testOptions()
	opts.Params.Confidence = 1
	_, err = newFolderService(opts).Generate(context.Background(), []string{path})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestGenerate_ParallelMatchesSequential(t *testing.T) {
	kit := testkit.NewTestKit(t.TempDir())
	langs := []string{"en", "fr", "es", "de", "it", "nl", "pl", "pt"}

	var logIDs []string
	for i, lang := range langs {
		config := testkit.DefaultLogGeneratorConfig()
		config.RecordCount = 40 + 10*i
		config.Seed = int64(i)
		path, err := kit.WriteLog(fmt.Sprintf("%s-model%d", lang, i), testkit.NewLogGenerator(config).Generate())
		require.NoError(t, err)
		logIDs = append(logIDs, path)
	}

	sequential := testOptions()
	parallel := testOptions()
	parallel.Workers = 4

	a, err := newFolderService(sequential).Generate(context.Background(), logIDs)
	require.NoError(t, err)
	b, err := newFolderService(parallel).Generate(context.Background(), logIDs)
	require.NoError(t, err)

	require.Len(t, a.Reports, len(logIDs))
	require.Len(t, b.Reports, len(logIDs))
	for i := range logIDs {
		assert.Equal(t, logIDs[i], b.Reports[i].LogID)
		assert.Equal(t, a.Reports[i].Interval, b.Reports[i].Interval)
		assert.Equal(t, a.Reports[i].TrueCount, b.Reports[i].TrueCount)
		assert.Equal(t, a.ErrorTables[i].Rows, b.ErrorTables[i].Rows)
	}
}

func TestGenerate_NoErrorTablesUnlessRequested(t *testing.T) {
	kit := testkit.NewTestKit(t.TempDir())
	path, err := kit.WriteLog("en-gpt2", testkit.Log("gpt2", false, true))
	require.NoError(t, err)

	opts := testOptions()
	opts.WriteErrors = false
	result, err := newFolderService(opts).Generate(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Len(t, result.Reports, 1)
	assert.Empty(t, result.ErrorTables)
}

func TestRun_WritesOutputsAndStoresRun(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit(t.TempDir())
	_, err := kit.WriteLog("en-gpt2", testkit.Log("gpt2", true, true, false, true))
	require.NoError(t, err)
	_, err = kit.WriteLog("xx-gpt2", testkit.Log("gpt2", true))
	require.NoError(t, err)

	tables, err := errortable.NewStore(errortable.FormatCSV, nil)
	require.NoError(t, err)

	repo := new(MockReportRepository)
	repo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(run ports.RunRecord) bool {
		return run.Folder == kit.Dir() && run.Resamples == 2000 && run.Seed == 42 && run.Failures == 1
	}), mock.AnythingOfType("*report.BatchResult")).Return(nil)

	svc := newFolderService(testOptions())
	svc.SetOutputs(tables, NewFileSummaryWriter(true))
	svc.SetRepository(repo)

	out, err := svc.Run(ctx, kit.Dir())
	require.NoError(t, err)
	repo.AssertExpectations(t)

	assert.Equal(t, []string{
		filepath.Join(kit.Dir(), ResultsDir, SummaryTextFile),
		filepath.Join(kit.Dir(), ResultsDir, SummaryHTMLFile),
	}, out.SummaryFiles)

	text, err := os.ReadFile(out.SummaryFiles[0])
	require.NoError(t, err)
	assert.Contains(t, string(text), "\tThe model got 75.000% of facts correct\n")
	assert.Contains(t, string(text), "Failed to process")

	require.Len(t, out.TableFiles, 1)
	assert.Equal(t, filepath.Join(kit.Dir(), ErrorAnalysisDir, "error-analysis-gpt2-english.csv"), out.TableFiles[0])
	rows, err := tables.ReadTable(ctx, out.TableFiles[0])
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRun_ReportsOverwrittenErrorTables(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit(t.TempDir())
	_, err := kit.WriteLog("en-gpt2-run1", testkit.Log("gpt2", true, false))
	require.NoError(t, err)
	_, err = kit.WriteLog("en-gpt2-run2", testkit.Log("gpt2", false, false))
	require.NoError(t, err)

	tables, err := errortable.NewStore(errortable.FormatCSV, nil)
	require.NoError(t, err)
	svc := newFolderService(testOptions())
	svc.SetOutputs(tables, nil)

	out, err := svc.Run(ctx, kit.Dir())
	require.NoError(t, err)

	path := filepath.Join(kit.Dir(), ErrorAnalysisDir, "error-analysis-gpt2-english.csv")
	assert.Equal(t, []string{path}, out.TableFiles)
	assert.Equal(t, []string{path}, out.Overwritten)

	rows, err := tables.ReadTable(ctx, path)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "last writer wins")
}

func TestRun_MissingFolder(t *testing.T) {
	_, err := newFolderService(testOptions()).Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
