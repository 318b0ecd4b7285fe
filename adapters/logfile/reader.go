package logfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gocka/domain/core"
	"gocka/domain/outcome"
	"gocka/internal"
	"gocka/ports"

	"github.com/tidwall/gjson"
)

// Keys of the probing log layout
const (
	keyModelName   = "model_name"
	keyScoreFull   = "score_dict_full"
	keySummary     = "score_dict_summary"
	keyDatetime    = "curr_datetime"
	keyWinsFlag    = "p_true > p_false_average"
	keyWinsAlias   = "fact_wins"
	keyRatio       = "p_true / p_false_average"
	keyPFalseAvg   = "p_false_average"
	keyPFalseList  = "p_false_list"
	keyCounterfact = "counterfact"
)

// FolderSource reads probing logs (*.json) from the local filesystem
type FolderSource struct {
	logger *internal.Logger
}

var _ ports.LogSource = (*FolderSource)(nil)

// NewFolderSource creates a filesystem log source
func NewFolderSource(logger *internal.Logger) *FolderSource {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &FolderSource{logger: logger.With("LogReader")}
}

// List returns the JSON logs directly inside folder, sorted by path
func (s *FolderSource) List(ctx context.Context, folder string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("log folder %s: %w", folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("log folder %s is not a directory", folder)
	}

	paths, err := filepath.Glob(filepath.Join(folder, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list logs in %s: %w", folder, err)
	}
	sort.Strings(paths)
	s.logger.Debug("found %d logs in %s", len(paths), folder)
	return paths, nil
}

// Read loads and parses one log file
func (s *FolderSource) Read(ctx context.Context, logID string) (*outcome.ModelLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := os.ReadFile(logID)
	if err != nil {
		return nil, fmt.Errorf("failed to read log %s: %w", logID, err)
	}

	log, err := Parse(logID, data)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("parsed %s in %.2fms (%d records)", logID,
		float64(time.Since(start).Nanoseconds())/1e6, len(log.Records))
	return log, nil
}

// Parse decodes the log layout. Only the record list of the first listed
// model is read; a model with no entry yields an empty record list.
func Parse(logID string, data []byte) (*outcome.ModelLog, error) {
	if !gjson.ValidBytes(data) {
		return nil, core.NewMalformedRecordError(-1, "log is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	modelName := firstString(root.Get(keyModelName))
	if modelName == "" {
		return nil, core.NewMalformedRecordError(-1, "missing model_name")
	}

	full := root.Get(keyScoreFull)
	if !full.IsObject() {
		return nil, core.NewMalformedRecordError(-1, "missing score_dict_full")
	}

	log := &outcome.ModelLog{
		LogID:     logID,
		ModelName: modelName,
	}

	var parseErr error
	full.ForEach(func(key, value gjson.Result) bool {
		if !strings.EqualFold(key.String(), modelName) {
			return true
		}
		if !value.IsArray() {
			parseErr = core.NewMalformedRecordError(-1, "records for "+modelName+" are not a list")
			return false
		}
		for i, item := range value.Array() {
			rec, err := parseRecord(i, item)
			if err != nil {
				parseErr = err
				return false
			}
			log.Records = append(log.Records, rec)
		}
		return false
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return log, nil
}

func firstString(v gjson.Result) string {
	if v.IsArray() {
		items := v.Array()
		if len(items) == 0 {
			return ""
		}
		return strings.TrimSpace(items[0].String())
	}
	if v.Type == gjson.String {
		return strings.TrimSpace(v.String())
	}
	return ""
}

func parseRecord(index int, item gjson.Result) (outcome.Record, error) {
	if !item.IsObject() {
		return outcome.Record{}, core.NewMalformedRecordError(index, "record is not an object")
	}
	fields := item.Map()

	stem, ok := stringField(fields, "stem")
	if !ok {
		return outcome.Record{}, core.NewMalformedRecordError(index, "missing stem")
	}
	fact, ok := stringField(fields, "fact")
	if !ok {
		return outcome.Record{}, core.NewMalformedRecordError(index, "missing fact")
	}

	counterfacts, err := counterfactField(fields[keyCounterfact])
	if err != nil {
		return outcome.Record{}, core.NewMalformedRecordError(index, err.Error())
	}

	pTrue, ok := numberField(fields, "p_true")
	if !ok {
		return outcome.Record{}, core.NewMalformedRecordError(index, "missing p_true")
	}

	pFalse, err := numberList(fields[keyPFalseList])
	if err != nil {
		return outcome.Record{}, core.NewMalformedRecordError(index, err.Error())
	}

	rec := outcome.NewRecord(stem, fact, counterfacts, pTrue, pFalse)
	if avg, ok := numberField(fields, keyPFalseAvg); ok {
		rec.PFalseAverage = avg
	}

	for _, key := range []string{keyWinsFlag, keyWinsAlias} {
		flag, present := fields[key]
		if !present {
			continue
		}
		wins, err := parseFlag(flag)
		if err != nil {
			return outcome.Record{}, core.NewMalformedRecordError(index, err.Error())
		}
		rec.Wins = &wins
		break
	}

	rec.Subject = fields["subject"].String()
	rec.Object = fields["object"].String()
	rec.Relation = fields["relation"].String()
	rec.DatasetID = fields["dataset_id"].String()
	return rec, nil
}

func stringField(fields map[string]gjson.Result, key string) (string, bool) {
	v, ok := fields[key]
	if !ok || v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

func numberField(fields map[string]gjson.Result, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok || v.Type != gjson.Number {
		return 0, false
	}
	return v.Float(), true
}

// counterfactField accepts a list of strings or a single separator-joined string
func counterfactField(v gjson.Result) ([]string, error) {
	switch {
	case v.IsArray():
		var out []string
		for _, item := range v.Array() {
			if item.Type != gjson.String {
				return nil, fmt.Errorf("counterfact entry %s is not a string", item.Raw)
			}
			out = append(out, item.String())
		}
		return out, nil
	case v.Type == gjson.String:
		return outcome.SplitEntities(v.String()), nil
	default:
		return nil, fmt.Errorf("missing counterfact")
	}
}

func numberList(v gjson.Result) ([]float64, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("missing p_false_list")
	}
	var out []float64
	for _, item := range v.Array() {
		if item.Type != gjson.Number {
			return nil, fmt.Errorf("p_false_list entry %s is not a number", item.Raw)
		}
		out = append(out, item.Float())
	}
	return out, nil
}

// parseFlag reads the upstream verdict, stored either as a JSON bool or as
// the strings "True"/"False"
func parseFlag(v gjson.Result) (bool, error) {
	switch v.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.String()))
		if err != nil {
			return false, fmt.Errorf("invalid %s flag %q", keyWinsFlag, v.String())
		}
		return b, nil
	default:
		return false, fmt.Errorf("invalid %s flag %s", keyWinsFlag, v.Raw)
	}
}
