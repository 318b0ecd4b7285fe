package sqlstore

import (
	"context"
	"fmt"

	"gocka/domain/core"
	"gocka/domain/outcome"
	"gocka/domain/report"
	"gocka/domain/stats"
	"gocka/internal/errors"
	"gocka/internal/migration"
	"gocka/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the report database and applies the schema.
// driver is "sqlite" (modernc) or "postgres" (lib/pq).
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if driver == "sqlite" {
		// A single connection keeps ":memory:" databases alive and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, errors.DatabaseError("failed to enable foreign keys", err)
		}
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.DatabaseError("database migration failed", err)
	}
	return db, nil
}

// ReportRepository stores batch results with sqlx
type ReportRepository struct {
	db *sqlx.DB
}

var _ ports.ReportRepository = (*ReportRepository)(nil)

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

type reportRow struct {
	ID         string  `db:"id"`
	RunID      string  `db:"run_id"`
	Position   int     `db:"position"`
	LogID      string  `db:"log_id"`
	ModelName  string  `db:"model_name"`
	Language   string  `db:"language"`
	Family     string  `db:"family"`
	FactCount  int     `db:"fact_count"`
	TrueCount  int     `db:"true_count"`
	Accuracy   float64 `db:"accuracy"`
	Lower      float64 `db:"ci_lower"`
	Median     float64 `db:"ci_median"`
	Upper      float64 `db:"ci_upper"`
	HalfWidth  float64 `db:"half_width"`
	StdError   float64 `db:"std_error"`
	Confidence float64 `db:"confidence"`
	Resamples  int     `db:"resamples"`
	MeanPTrue  float64 `db:"mean_p_true"`
	MeanPFalse float64 `db:"mean_p_false"`
}

type errorRow struct {
	ReportID     string  `db:"report_id"`
	Position     int     `db:"position"`
	Model        string  `db:"model"`
	DatasetID    string  `db:"dataset_id"`
	Difference   float64 `db:"difference"`
	Stem         string  `db:"stem"`
	Fact         string  `db:"fact"`
	Counterfacts string  `db:"counterfacts"`
	Relation     string  `db:"relation"`
}

// SaveBatch stores the run header, its reports and their error rows in one transaction
func (r *ReportRepository) SaveBatch(ctx context.Context, run ports.RunRecord, result *report.BatchResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, folder, resamples, confidence, seed, failures, created_at)
		VALUES (:id, :folder, :resamples, :confidence, :seed, :failures, :created_at)`, run)
	if err != nil {
		return errors.DatabaseError("failed to insert run", err)
	}

	tables := make(map[string]report.ErrorTable, len(result.ErrorTables))
	for _, t := range result.ErrorTables {
		tables[t.LogID] = t
	}

	for pos, rep := range result.Reports {
		row := toReportRow(run.ID, pos, rep)
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO log_reports (
				id, run_id, position, log_id, model_name, language, family,
				fact_count, true_count, accuracy, ci_lower, ci_median, ci_upper,
				half_width, std_error, confidence, resamples, mean_p_true, mean_p_false
			) VALUES (
				:id, :run_id, :position, :log_id, :model_name, :language, :family,
				:fact_count, :true_count, :accuracy, :ci_lower, :ci_median, :ci_upper,
				:half_width, :std_error, :confidence, :resamples, :mean_p_true, :mean_p_false
			)`, row)
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert report for %s", rep.LogID), err)
		}

		table, ok := tables[rep.LogID]
		if !ok {
			continue
		}
		for i, er := range table.Rows {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO error_rows (report_id, position, model, dataset_id, difference, stem, fact, counterfacts, relation)
				VALUES (:report_id, :position, :model, :dataset_id, :difference, :stem, :fact, :counterfacts, :relation)`,
				errorRow{
					ReportID:     row.ID,
					Position:     i,
					Model:        er.Model,
					DatasetID:    er.DatasetID,
					Difference:   er.Difference,
					Stem:         er.Stem,
					Fact:         er.True,
					Counterfacts: outcome.JoinEntities(er.False),
					Relation:     er.Relation,
				})
			if err != nil {
				return errors.DatabaseError(fmt.Sprintf("failed to insert error row for %s", rep.LogID), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit batch", err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (r *ReportRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []ports.RunRecord
	query := r.db.Rebind(`
		SELECT id, folder, resamples, confidence, seed, failures, created_at
		FROM runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return runs, nil
}

// GetReports returns the reports of a run in their original input order
func (r *ReportRepository) GetReports(ctx context.Context, runID core.RunID) ([]report.LogReport, error) {
	var rows []reportRow
	query := r.db.Rebind(`
		SELECT id, run_id, position, log_id, model_name, language, family,
			fact_count, true_count, accuracy, ci_lower, ci_median, ci_upper,
			half_width, std_error, confidence, resamples, mean_p_true, mean_p_false
		FROM log_reports
		WHERE run_id = ?
		ORDER BY position`)
	if err := r.db.SelectContext(ctx, &rows, query, string(runID)); err != nil {
		return nil, errors.DatabaseError("failed to get reports", err)
	}

	reports := make([]report.LogReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toDomain())
	}
	return reports, nil
}

// GetErrorRows returns a report's error rows, most confidently wrong first
func (r *ReportRepository) GetErrorRows(ctx context.Context, reportID core.ReportID) ([]report.ErrorRow, error) {
	var rows []errorRow
	query := r.db.Rebind(`
		SELECT report_id, position, model, dataset_id, difference, stem, fact, counterfacts, relation
		FROM error_rows
		WHERE report_id = ?
		ORDER BY position`)
	if err := r.db.SelectContext(ctx, &rows, query, string(reportID)); err != nil {
		return nil, errors.DatabaseError("failed to get error rows", err)
	}

	out := make([]report.ErrorRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, report.ErrorRow{
			Model:      row.Model,
			DatasetID:  row.DatasetID,
			Difference: row.Difference,
			Stem:       row.Stem,
			True:       row.Fact,
			False:      outcome.SplitEntities(row.Counterfacts),
			Relation:   row.Relation,
		})
	}
	return out, nil
}

func toReportRow(runID core.RunID, pos int, rep report.LogReport) reportRow {
	id := rep.ID
	if id == "" {
		id = core.NewReportID()
	}
	return reportRow{
		ID:         string(id),
		RunID:      string(runID),
		Position:   pos,
		LogID:      rep.LogID,
		ModelName:  rep.ModelName,
		Language:   rep.Language,
		Family:     rep.Family,
		FactCount:  rep.FactCount,
		TrueCount:  rep.TrueCount,
		Accuracy:   rep.Accuracy,
		Lower:      rep.Interval.Lower,
		Median:     rep.Interval.Median,
		Upper:      rep.Interval.Upper,
		HalfWidth:  rep.Interval.HalfWidth,
		StdError:   rep.Interval.StdError,
		Confidence: rep.Interval.Confidence,
		Resamples:  rep.Interval.Resamples,
		MeanPTrue:  rep.MeanPTrue,
		MeanPFalse: rep.MeanPFalse,
	}
}

func (row reportRow) toDomain() report.LogReport {
	return report.LogReport{
		ID:        core.ReportID(row.ID),
		LogID:     row.LogID,
		ModelName: row.ModelName,
		Language:  row.Language,
		Family:    row.Family,
		FactCount: row.FactCount,
		TrueCount: row.TrueCount,
		Accuracy:  row.Accuracy,
		Interval: stats.ConfidenceReport{
			Lower:      row.Lower,
			Median:     row.Median,
			Upper:      row.Upper,
			HalfWidth:  row.HalfWidth,
			StdError:   row.StdError,
			Confidence: row.Confidence,
			Resamples:  row.Resamples,
			SampleSize: row.FactCount,
		},
		MeanPTrue:  row.MeanPTrue,
		MeanPFalse: row.MeanPFalse,
	}
}
