package errortable

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gocka/domain/outcome"
	"gocka/domain/report"
	"gocka/internal"
	"gocka/ports"

	"github.com/xuri/excelize/v2"
)

// Supported table formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const sheetName = "Sheet1"

// Store writes and reads error tables as CSV or XLSX files
type Store struct {
	format string
	logger *internal.Logger
}

var (
	_ ports.ErrorTableWriter = (*Store)(nil)
	_ ports.ErrorTableReader = (*Store)(nil)
)

// NewStore creates a store that writes the given format
func NewStore(format string, logger *internal.Logger) (*Store, error) {
	format = strings.ToLower(format)
	if format != FormatCSV && format != FormatXLSX {
		return nil, fmt.Errorf("unsupported error table format: %s", format)
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Store{format: format, logger: logger.With("ErrorTable")}, nil
}

// FileName is error-analysis-<model base name>-<language>.<ext>
func FileName(table report.ErrorTable, format string) string {
	model := strings.TrimRight(table.Model, "/")
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	return fmt.Sprintf("error-analysis-%s-%s.%s", model, table.Language, format)
}

// WriteTable writes the table into dir and returns the file path
func (s *Store) WriteTable(ctx context.Context, dir string, table report.ErrorTable) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create error table directory: %w", err)
	}

	path := filepath.Join(dir, FileName(table, s.format))
	records := toRecords(table.Rows)

	var err error
	switch s.format {
	case FormatXLSX:
		err = writeXLSX(path, records)
	default:
		err = writeCSV(path, records)
	}
	if err != nil {
		return "", err
	}

	s.logger.Debug("wrote %d error rows to %s", len(table.Rows), path)
	return path, nil
}

// ReadTable loads a table, choosing the format from the file extension
func (s *Store) ReadTable(ctx context.Context, path string) ([]report.ErrorRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err = readXLSX(path)
	case ".csv":
		records, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

func toRecords(rows []report.ErrorRow) [][]string {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, append([]string(nil), report.Columns...))
	for _, row := range rows {
		records = append(records, []string{
			row.Model,
			row.DatasetID,
			strconv.FormatFloat(row.Difference, 'g', -1, 64),
			row.Stem,
			row.True,
			outcome.JoinEntities(row.False),
			row.Relation,
		})
	}
	return records
}

func fromRecords(records [][]string) ([]report.ErrorRow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("error table has no header row")
	}
	header := pad(records[0])
	for i, col := range report.Columns {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("error table column %d is %q, want %q", i, header[i], col)
		}
	}

	rows := make([]report.ErrorRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		rec = pad(rec)
		diff, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("error table row %d: invalid difference %q", i+1, rec[2])
		}
		rows = append(rows, report.ErrorRow{
			Model:      rec[0],
			DatasetID:  rec[1],
			Difference: diff,
			Stem:       rec[3],
			True:       rec[4],
			False:      outcome.SplitEntities(rec[5]),
			Relation:   rec[6],
		})
	}
	return rows, nil
}

// pad extends rows whose trailing empty cells were dropped by the reader
func pad(rec []string) []string {
	for len(rec) < len(report.Columns) {
		rec = append(rec, "")
	}
	return rec
}

func writeCSV(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return file.Close()
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return records, nil
}

func writeXLSX(path string, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(rec))
		for j, v := range rec {
			values[j] = v
		}
		// differences are stored as numbers so spreadsheets sort them numerically
		if i > 0 {
			if diff, err := strconv.ParseFloat(rec[2], 64); err == nil {
				values[2] = diff
			}
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	return nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheetName, err)
	}
	return rows, nil
}
