// Package pipeline runs one index calculation from observation files to the
// configured sinks.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
	"github.com/StrathCole/gpu-index/pkg/config"
	"github.com/StrathCole/gpu-index/pkg/feeder/gate"
	"github.com/StrathCole/gpu-index/pkg/feeder/notify"
	"github.com/StrathCole/gpu-index/pkg/sources"
)

// IndexStore is the durable store the pipeline publishes to.
type IndexStore interface {
	LatestPrice(ctx context.Context) (*float64, error)
	Append(ctx context.Context, snap *aggregator.Snapshot, metadata json.RawMessage) (int64, error)
}

// Notifier announces stored index values.
type Notifier interface {
	Publish(ctx context.Context, event notify.IndexPublished) error
}

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Snapshot  *aggregator.Snapshot
	Report    *aggregator.Report
	Decision  *gate.Decision
	IndexID   int64
	Published bool
}

// Pipeline wires loader, calculator, gate and sinks for one run.
type Pipeline struct {
	cfg      *config.Config
	loader   *sources.Loader
	calc     *aggregator.Calculator
	gate     *gate.Gate
	store    IndexStore
	notifier Notifier
	newID    func() string
	logger   zerolog.Logger
}

// New creates a pipeline. A nil store makes Publish fail; a nil notifier
// skips notifications.
func New(cfg *config.Config, store IndexStore, notifier Notifier, logger zerolog.Logger) (*Pipeline, error) {
	registry, err := RegistryFromConfig(cfg.Index.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	loader := sources.NewLoader(sources.LoaderConfig{
		Dir:          cfg.Index.DataDir,
		CombinedFile: cfg.Index.CombinedFile,
		FilePattern:  cfg.Index.FilePattern,
	}, NormalizerFromConfig(cfg.Index.Registry, logger), logger)

	p := &Pipeline{
		cfg:      cfg,
		loader:   loader,
		calc:     aggregator.NewCalculator(registry, logger),
		gate:     gate.New(cfg.Gate.Tolerance, logger),
		store:    store,
		notifier: notifier,
		newID:    func() string { return uuid.New().String() },
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
	return p, nil
}

// ErrNoStore indicates Publish was called without a durable store.
var ErrNoStore = errors.New("no store configured")

// Calculate loads observations, computes the index and writes the report.
// The history CSV gets a row unless there was no data. With no data the
// zero report is still written and the result is returned with
// sources.ErrNoData.
func (p *Pipeline) Calculate(ctx context.Context) (*Result, error) {
	res := &Result{RunID: p.newID()}
	logger := p.logger.With().Str("run_id", res.RunID).Logger()

	obs, loadErr := p.loader.Load(ctx)
	if loadErr != nil && !errors.Is(loadErr, sources.ErrNoData) {
		return nil, loadErr
	}

	res.Snapshot = p.calc.Compute(obs)
	res.Report = aggregator.NewReport(res.Snapshot, res.RunID)

	reportPath := p.cfg.DataPath(p.cfg.Index.ReportFile)
	if err := aggregator.WriteReport(reportPath, res.Report); err != nil {
		return res, err
	}
	logger.Info().Str("path", reportPath).Float64("index_price", res.Report.FinalIndexPrice).Msg("Report written")

	if loadErr != nil {
		logger.Warn().Err(loadErr).Msg("No observations, zero report written")
		return res, loadErr
	}

	historyPath := p.cfg.DataPath(p.cfg.Index.HistoryFile)
	if err := aggregator.AppendHistory(historyPath, res.Snapshot); err != nil {
		return res, err
	}
	logger.Debug().Str("path", historyPath).Msg("History row appended")

	return res, nil
}

// FromReport rebuilds a result from a previously written report.
func (p *Pipeline) FromReport(path string) (*Result, error) {
	snap, report, err := aggregator.ReadReport(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}

	runID := report.Meta.RunID
	if runID == "" {
		runID = p.newID()
	}
	p.logger.Info().Str("path", path).Str("run_id", runID).Float64("index_price", snap.FinalPrice).Msg("Loaded report")
	return &Result{RunID: runID, Snapshot: snap, Report: report}, nil
}

// Publish gates res against the last stored value and, when accepted,
// writes it to the store and announces it. A zero snapshot is never
// published.
func (p *Pipeline) Publish(ctx context.Context, res *Result) error {
	logger := p.logger.With().Str("run_id", res.RunID).Logger()

	if res.Snapshot.IsZero() {
		return fmt.Errorf("refusing to publish: %w", sources.ErrNoData)
	}
	if p.store == nil {
		return ErrNoStore
	}

	previous, err := p.store.LatestPrice(ctx)
	if err != nil {
		return err
	}

	decision, err := p.gate.Accept(res.Snapshot.FinalPrice, previous)
	res.Decision = &decision
	if err != nil {
		return err
	}

	metadata, err := metadataFor(res)
	if err != nil {
		return err
	}

	id, err := p.store.Append(ctx, res.Snapshot, metadata)
	if err != nil {
		return err
	}
	res.IndexID = id
	res.Published = true

	if p.notifier != nil {
		event := notify.NewIndexPublished(res.RunID, id, res.Snapshot)
		if err := p.notifier.Publish(ctx, event); err != nil {
			// the store is authoritative; a missed event does not undo the write
			logger.Error().Err(err).Int64("index_id", id).Msg("Failed to publish index event")
		}
	}

	logger.Info().
		Int64("index_id", id).
		Float64("index_price", res.Snapshot.FinalPrice).
		Msg("Index published")
	return nil
}

// Run calculates and publishes in one step.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res, err := p.Calculate(ctx)
	if err != nil {
		if errors.Is(err, sources.ErrNoData) && res != nil {
			p.logger.Error().Str("run_id", res.RunID).Msg("No provider data, nothing published")
		}
		return res, err
	}
	return res, p.Publish(ctx, res)
}

func metadataFor(res *Result) (json.RawMessage, error) {
	report := res.Report
	if report == nil {
		report = aggregator.NewReport(res.Snapshot, res.RunID)
	}
	details, err := report.Details()
	if err != nil {
		return nil, fmt.Errorf("failed to encode details: %w", err)
	}

	meta, err := json.Marshal(struct {
		Details json.RawMessage `json:"details"`
		RunID   string          `json:"run_id"`
	}{Details: details, RunID: res.RunID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return meta, nil
}
