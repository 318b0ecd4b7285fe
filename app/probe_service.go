package app

import (
	"context"
	"fmt"

	"gocka/domain/architecture"
	"gocka/domain/core"
	"gocka/domain/outcome"
	"gocka/internal"
	"gocka/ports"
)

// ProbeItem is one dataset row to probe. Stem and False may hold several
// values joined by outcome.EntitySeparator; with several stems, stem i is
// used for entity i (the true fact first, then each counterfact).
type ProbeItem struct {
	Stem      string `json:"stem"`
	True      string `json:"true"`
	False     string `json:"false"`
	Subject   string `json:"subject,omitempty"`
	Object    string `json:"object,omitempty"`
	Relation  string `json:"relation,omitempty"`
	DatasetID string `json:"dataset_id,omitempty"`
}

// ProbeService scores probe items against a model and builds its outcome log
type ProbeService struct {
	prober ports.Prober
	sink   ports.LogSink
	logger *internal.Logger
}

// NewProbeService creates a probe service. sink may be nil when logs are not persisted.
func NewProbeService(prober ports.Prober, sink ports.LogSink, logger *internal.Logger) *ProbeService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ProbeService{
		prober: prober,
		sink:   sink,
		logger: logger.With("ProbeService"),
	}
}

// Probe scores every item for model. Unsupported model names fail before any
// probe call is made.
func (s *ProbeService) Probe(ctx context.Context, model string, items []ProbeItem) (*outcome.ModelLog, error) {
	family, err := architecture.Classify(model)
	if err != nil {
		return nil, err
	}
	s.logger.Info("probing %d items with %s (%s)", len(items), model, family)

	log := &outcome.ModelLog{ModelName: model, Records: make([]outcome.Record, 0, len(items))}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.probeItem(ctx, model, family, i, item)
		if err != nil {
			return nil, err
		}
		log.Records = append(log.Records, rec)
	}
	return log, nil
}

// ProbeToFile probes items and writes the resulting log to path
func (s *ProbeService) ProbeToFile(ctx context.Context, path, model string, items []ProbeItem) (*outcome.ModelLog, error) {
	if s.sink == nil {
		return nil, fmt.Errorf("probe service has no log sink")
	}
	log, err := s.Probe(ctx, model, items)
	if err != nil {
		return nil, err
	}
	if err := s.sink.Write(ctx, path, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *ProbeService) probeItem(ctx context.Context, model string, family architecture.Family, index int, item ProbeItem) (outcome.Record, error) {
	counterfacts := outcome.SplitEntities(item.False)
	entities := append([]string{item.True}, counterfacts...)

	stems := outcome.SplitEntities(item.Stem)
	if len(stems) > 1 && len(stems) < len(entities) {
		return outcome.Record{}, core.NewMalformedRecordError(index,
			fmt.Sprintf("%d stems for %d entities", len(stems), len(entities)))
	}

	probs := make([]float64, len(entities))
	for i, entity := range entities {
		prompt := stems[0]
		if len(stems) > 1 {
			prompt = stems[i]
		}
		prompt += family.MaskSuffix()

		p, err := s.prober.Probability(ctx, model, prompt, entity)
		if err != nil {
			return outcome.Record{}, fmt.Errorf("probe item %d entity %q: %w", index, entity, err)
		}
		probs[i] = p
	}

	rec := outcome.NewRecord(stems[0], item.True, counterfacts, probs[0], probs[1:])
	rec.Subject = item.Subject
	rec.Object = item.Object
	rec.Relation = item.Relation
	rec.DatasetID = item.DatasetID
	return rec, nil
}
