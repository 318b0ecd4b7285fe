package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gocka/domain/architecture"
	"gocka/domain/core"
	"gocka/domain/language"
	"gocka/domain/outcome"
	"gocka/domain/report"
	"gocka/domain/stats"
	"gocka/internal"
	"gocka/ports"

	descriptive "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// Output directories created under the input folder
const (
	ResultsDir       = "results"
	ErrorAnalysisDir = "error-analysis"
)

// ReportOptions controls one batch run
type ReportOptions struct {
	Params      stats.BootstrapParams
	Seed        int64
	Workers     int  // Logs processed concurrently
	FailFast    bool // Abort the batch on the first failing log in input order
	WriteErrors bool // Build and persist error tables
}

// DefaultReportOptions returns sequential, collect-failures defaults
func DefaultReportOptions() ReportOptions {
	return ReportOptions{
		Params:  stats.DefaultBootstrapParams(),
		Seed:    42,
		Workers: 1,
	}
}

// ReportService turns probing logs into accuracy reports with bootstrap intervals
type ReportService struct {
	source    ports.LogSource
	estimator ports.EstimatorPort
	rngPort   ports.RNGPort

	tables  ports.ErrorTableWriter
	summary ports.SummaryWriter
	repo    ports.ReportRepository

	opts   ReportOptions
	logger *internal.Logger
	now    func() time.Time
}

// NewReportService creates a report service. Output writers and the repository
// are attached separately and are optional.
func NewReportService(
	source ports.LogSource,
	estimator ports.EstimatorPort,
	rngPort ports.RNGPort,
	opts ReportOptions,
	logger *internal.Logger,
) *ReportService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ReportService{
		source:    source,
		estimator: estimator,
		rngPort:   rngPort,
		opts:      opts,
		logger:    logger.With("ReportService"),
		now:       time.Now,
	}
}

// SetOutputs attaches the error table and summary writers used by Run
func (s *ReportService) SetOutputs(tables ports.ErrorTableWriter, summary ports.SummaryWriter) {
	s.tables = tables
	s.summary = summary
}

// SetRepository attaches a store that receives every completed run
func (s *ReportService) SetRepository(repo ports.ReportRepository) {
	s.repo = repo
}

// Options returns the options the service was built with
func (s *ReportService) Options() ReportOptions {
	return s.opts
}

// logOutcome is the per-log slot filled by one worker
type logOutcome struct {
	report *report.LogReport
	table  *report.ErrorTable
	err    error
	fatal  bool // err stopped the batch
}

// Generate processes logIDs and returns their reports in input order.
//
// A log that fails with a data error is recorded in Failures, unless FailFast
// is set, in which case the failure with the lowest input index among the logs
// processed before the batch stopped is returned as a *core.LogError.
// Invalid estimator parameters and cancellation always abort the batch.
func (s *ReportService) Generate(ctx context.Context, logIDs []string) (*report.BatchResult, error) {
	if err := s.opts.Params.Validate(); err != nil {
		return nil, err
	}

	outcomes := make([]logOutcome, len(logIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, logID := range logIDs {
		i, logID := i, logID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rep, table, err := s.processLog(gctx, logID)
			if err != nil {
				if s.opts.FailFast || aborts(gctx, err) {
					outcomes[i] = logOutcome{err: err, fatal: true}
					return core.NewLogError(logID, err)
				}
				outcomes[i] = logOutcome{err: err}
				s.logger.Warn("skipping %s: %v", logID, err)
				return nil
			}
			outcomes[i] = logOutcome{report: rep, table: table}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			if i, cause := firstFailure(outcomes); cause != nil {
				return nil, core.NewLogError(logIDs[i], cause)
			}
		}
		return nil, err
	}

	result := &report.BatchResult{RunID: core.NewRunID()}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, report.LogFailure{LogID: logIDs[i], Err: o.err})
			continue
		}
		result.Reports = append(result.Reports, *o.report)
		if o.table != nil {
			result.ErrorTables = append(result.ErrorTables, *o.table)
		}
	}
	return result, nil
}

// firstFailure returns the lowest-index fatal failure that is not a side
// effect of the group being cancelled
func firstFailure(outcomes []logOutcome) (int, error) {
	for i, o := range outcomes {
		if !o.fatal || errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded) {
			continue
		}
		return i, o.err
	}
	return -1, nil
}

// aborts reports whether err must stop the whole batch
func aborts(ctx context.Context, err error) bool {
	return core.IsInvalidInputError(err) || ctx.Err() != nil
}

func (s *ReportService) processLog(ctx context.Context, logID string) (*report.LogReport, *report.ErrorTable, error) {
	// the locale comes from the identifier, so an unknown code fails before any read
	lang, err := language.FromLogID(logID)
	if err != nil {
		return nil, nil, err
	}

	log, err := s.source.Read(ctx, logID)
	if err != nil {
		return nil, nil, err
	}
	log.LogID = logID
	log.Language = lang

	if len(log.Records) == 0 {
		return nil, nil, core.NewEmptyDatasetError(log.ModelName)
	}
	if err := log.Validate(); err != nil {
		return nil, nil, err
	}

	seq := outcome.CorrectnessSequence(log.Records)
	trueCount := 0
	for _, v := range seq {
		trueCount += v
	}

	src, err := s.rngPort.Stream(ctx, "bootstrap", filepath.Base(logID), s.opts.Seed)
	if err != nil {
		return nil, nil, err
	}
	interval, err := s.estimator.Estimate(ctx, seq, s.opts.Params, src)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap failed: %w", err)
	}

	pTrues := make([]float64, len(log.Records))
	pFalses := make([]float64, len(log.Records))
	for i, r := range log.Records {
		pTrues[i] = r.PTrue
		pFalses[i] = r.PFalseAverage
	}
	meanTrue, _ := descriptive.Mean(pTrues)
	meanFalse, _ := descriptive.Mean(pFalses)

	rep := &report.LogReport{
		ID:         core.NewReportID(),
		LogID:      logID,
		ModelName:  log.ModelName,
		Language:   lang,
		FactCount:  len(log.Records),
		TrueCount:  trueCount,
		Accuracy:   float64(trueCount) / float64(len(log.Records)),
		Interval:   interval,
		MeanPTrue:  meanTrue,
		MeanPFalse: meanFalse,
	}
	if family, err := architecture.Classify(log.ModelName); err == nil {
		rep.Family = family.String()
	} else {
		s.logger.Debug("no architecture family for %s: %v", log.ModelName, err)
	}

	s.logger.Debug("%s: %d/%d facts, ±%.4f", logID, trueCount, rep.FactCount, interval.HalfWidth)

	if !s.opts.WriteErrors {
		return rep, nil, nil
	}
	table := report.NewErrorTable(log)
	return rep, &table, nil
}

// Discover lists the logs in folder in a stable order
func (s *ReportService) Discover(ctx context.Context, folder string) ([]string, error) {
	return s.source.List(ctx, folder)
}

// RunOutput lists everything a Run produced
type RunOutput struct {
	Result       *report.BatchResult
	SummaryFiles []string
	TableFiles   []string
	Overwritten  []string // Table files written more than once in this run
}

// Run discovers the logs in folder, generates their reports and persists the
// summary, error tables and run record through the attached outputs.
func (s *ReportService) Run(ctx context.Context, folder string) (*RunOutput, error) {
	logIDs, err := s.Discover(ctx, folder)
	if err != nil {
		return nil, err
	}
	s.logger.Info("processing %d logs in %s", len(logIDs), folder)

	result, err := s.Generate(ctx, logIDs)
	if err != nil {
		return nil, err
	}
	result.Folder = folder

	out := &RunOutput{Result: result}

	if s.summary != nil {
		files, err := s.summary.WriteSummary(ctx, filepath.Join(folder, ResultsDir), result)
		if err != nil {
			return nil, fmt.Errorf("failed to write summary: %w", err)
		}
		out.SummaryFiles = files
	}

	if s.opts.WriteErrors && s.tables != nil {
		dir := filepath.Join(folder, ErrorAnalysisDir)
		writer := make(map[string]string, len(result.ErrorTables))
		for _, table := range result.ErrorTables {
			path, err := s.tables.WriteTable(ctx, dir, table)
			if err != nil {
				return nil, fmt.Errorf("failed to write error table for %s: %w", table.LogID, err)
			}
			if prev, ok := writer[path]; ok {
				s.logger.Warn("error table %s from %s overwritten by %s", path, prev, table.LogID)
				out.Overwritten = append(out.Overwritten, path)
				continue
			}
			writer[path] = table.LogID
			out.TableFiles = append(out.TableFiles, path)
		}
	}

	if s.repo != nil {
		run := ports.RunRecord{
			ID:         result.RunID,
			Folder:     folder,
			Resamples:  s.opts.Params.Resamples,
			Confidence: s.opts.Params.Confidence,
			Seed:       s.opts.Seed,
			Failures:   len(result.Failures),
			CreatedAt:  s.now().UTC().Format(time.RFC3339Nano),
		}
		if err := s.repo.SaveBatch(ctx, run, result); err != nil {
			return nil, err
		}
		s.logger.Debug("stored run %s", result.RunID)
	}

	if result.HasFailures() {
		s.logger.Warn("%d of %d logs failed", len(result.Failures), len(logIDs))
	}
	return out, nil
}
