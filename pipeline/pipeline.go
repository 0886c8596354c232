// Package pipeline runs one topic end to end: filter the catalog, fetch the
// observations of every matched indicator, reshape them and write the tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/ghoapi"
	"github.com/giygas/gho-indicators/indicators"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
	"github.com/giygas/gho-indicators/metrics"
	"github.com/giygas/gho-indicators/reshape"
	"github.com/giygas/gho-indicators/validation"
	"github.com/giygas/gho-indicators/writer"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Compile-time check to ensure Pipeline implements TopicRunner
var _ interfaces.TopicRunner = (*Pipeline)(nil)

// ErrNoObservations is returned when no matched indicator produced a single row
var ErrNoObservations = errors.New("no observations collected")

// TableWriter persists the tables of one topic
type TableWriter interface {
	Write(topic entities.Topic, long entities.LongTable, wide entities.WideTable) (writer.Paths, error)
}

// Pipeline holds the collaborators and settings shared by every topic run
type Pipeline struct {
	source      interfaces.IndicatorSource
	writer      TableWriter
	validator   interfaces.DataValidator
	concurrency int
	duplicates  reshape.DuplicatePolicy
	now         func() time.Time
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithWriter sets the table writer used by Execute. Without one, Execute only runs.
func WithWriter(w TableWriter) Option {
	return func(p *Pipeline) {
		p.writer = w
	}
}

// WithConcurrency bounds the number of observation requests in flight.
// Values below 2 keep fetching strictly sequential.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// WithDuplicatePolicy sets how colliding pivot cells are resolved
func WithDuplicatePolicy(policy reshape.DuplicatePolicy) Option {
	return func(p *Pipeline) {
		p.duplicates = policy
	}
}

// WithValidator replaces the data quality validator
func WithValidator(v interfaces.DataValidator) Option {
	return func(p *Pipeline) {
		p.validator = v
	}
}

// New creates a pipeline reading from source
func New(source interfaces.IndicatorSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:      source,
		validator:   validation.NewDataValidator(),
		concurrency: 1,
		duplicates:  reshape.DuplicateLast,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog fetches the indicator catalog once, to be shared by several topics
func (p *Pipeline) Catalog(ctx context.Context) ([]entities.IndicatorRecord, error) {
	catalog, err := p.source.FetchIndicatorCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch indicator catalog: %w", err)
	}
	return catalog, nil
}

// Run filters catalog by the topic keywords, fetches and reshapes the matched
// indicators. It performs no file I/O.
func (p *Pipeline) Run(ctx context.Context, topic entities.Topic, catalog []entities.IndicatorRecord) (*interfaces.TopicResult, error) {
	start := p.now()
	runID := uuid.NewString()
	log := logging.With("topic", topic.Name, "run_id", runID)

	selected := indicators.Filter(catalog, topic.Keywords)
	log.Info("Indicators selected", "catalog", len(catalog), "matched", len(selected))

	raw, fetched, err := p.fetchObservations(ctx, log, indicators.Codes(selected))
	if err != nil {
		return nil, err
	}
	if len(raw.Rows) == 0 {
		return nil, fmt.Errorf("topic %s: %w (%d indicators matched)", topic.Name, ErrNoObservations, len(selected))
	}

	long, wide, stats, err := reshape.Reshape(raw, reshape.Options{
		CountryColumn: topic.CountryColumn,
		Duplicates:    p.duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("reshape topic %s: %w", topic.Name, err)
	}

	report := p.validator.ReportDataQuality(long, wide)
	if report == nil {
		report = &interfaces.DataQualityReport{}
	}
	report.DroppedRows = stats.DroppedRows
	report.EmptyIndicators = fetched.empty
	report.UnavailableIndicators = fetched.unavailable

	completed := p.now()
	return &interfaces.TopicResult{
		Topic:       topic,
		RunID:       runID,
		Indicators:  selected,
		Long:        long,
		Wide:        wide,
		Report:      report,
		CompletedAt: completed,
		Duration:    completed.Sub(start),
	}, nil
}

// Execute runs the topic and writes its tables. Nothing is written when the run fails.
func (p *Pipeline) Execute(ctx context.Context, topic entities.Topic, catalog []entities.IndicatorRecord) (*interfaces.TopicResult, error) {
	start := time.Now()

	result, err := p.Run(ctx, topic, catalog)
	if err == nil && p.writer != nil {
		var paths writer.Paths
		paths, err = p.writer.Write(topic, result.Long, result.Wide)
		if err != nil {
			err = fmt.Errorf("write topic %s: %w", topic.Name, err)
		} else {
			result.Files = paths.All()
		}
	}

	metrics.PipelineDuration.WithLabelValues(topic.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues(topic.Name, outcome(err)).Inc()
		return nil, err
	}
	metrics.PipelineRunsTotal.WithLabelValues(topic.Name, "success").Inc()
	metrics.LongRows.WithLabelValues(topic.Name).Set(float64(len(result.Long.Rows)))

	validation.LogReport(topic.Name, result.Report)
	logging.Info("Topic completed",
		"topic", topic.Name,
		"run_id", result.RunID,
		"indicators", len(result.Indicators),
		"long_rows", len(result.Long.Rows),
		"countries", len(result.Wide.Countries),
		"files", result.Files,
		"duration", result.Duration,
	)
	return result, nil
}

// RunTopics fetches the catalog once and executes every topic in order. A failing
// topic does not stop the others; failures are joined into the returned error.
func (p *Pipeline) RunTopics(ctx context.Context, topics []entities.Topic) ([]*interfaces.TopicResult, error) {
	if len(topics) == 0 {
		return nil, nil
	}

	catalog, err := p.Catalog(ctx)
	if err != nil {
		for _, topic := range topics {
			metrics.PipelineRunsTotal.WithLabelValues(topic.Name, outcome(err)).Inc()
		}
		return nil, err
	}

	results := make([]*interfaces.TopicResult, 0, len(topics))
	var errs []error
	for _, topic := range topics {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		result, err := p.Execute(ctx, topic, catalog)
		if err != nil {
			logging.Error("Topic failed", "topic", topic.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// outcome classifies a run error for the runs counter
func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNoObservations):
		return "empty"
	case errors.Is(err, ghoapi.ErrTransport):
		return "transport_error"
	case errors.Is(err, reshape.ErrMissingColumns),
		errors.Is(err, reshape.ErrYearCoercion),
		errors.Is(err, reshape.ErrDuplicateObservation):
		return "data_error"
	default:
		return "error"
	}
}

// fetchResult records the per-indicator outcomes that did not contribute rows
type fetchResult struct {
	empty       []string
	unavailable []string
}

// slot holds what one indicator fetch produced
type slot struct {
	table       entities.ObservationTable
	unavailable bool
}

// fetchObservations downloads every code and concatenates the tables in code
// order. Indicators answered with a non-2xx status are skipped; any other
// failure aborts the run.
func (p *Pipeline) fetchObservations(ctx context.Context, log *slog.Logger, codes []string) (entities.ObservationTable, fetchResult, error) {
	slots := make([]slot, len(codes))

	fetch := func(ctx context.Context, i int) error {
		code := codes[i]
		table, err := p.source.FetchObservations(ctx, code)
		if err != nil {
			var statusErr *ghoapi.StatusError
			if errors.As(err, &statusErr) {
				log.Warn("Skipping indicator", "indicator", code, "status", statusErr.StatusCode)
				slots[i].unavailable = true
				return nil
			}
			return fmt.Errorf("fetch observations for %s: %w", code, err)
		}
		slots[i].table = table
		return nil
	}

	if p.concurrency > 1 && len(codes) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for i := range codes {
			g.Go(func() error {
				return fetch(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return entities.ObservationTable{}, fetchResult{}, err
		}
	} else {
		for i := range codes {
			if err := ctx.Err(); err != nil {
				return entities.ObservationTable{}, fetchResult{}, err
			}
			if err := fetch(ctx, i); err != nil {
				return entities.ObservationTable{}, fetchResult{}, err
			}
		}
	}

	combined := entities.NewObservationTable()
	result := fetchResult{empty: []string{}, unavailable: []string{}}
	for i, s := range slots {
		switch {
		case s.unavailable:
			result.unavailable = append(result.unavailable, codes[i])
		case len(s.table.Rows) == 0:
			log.Debug("Indicator has no observations", "indicator", codes[i])
			result.empty = append(result.empty, codes[i])
		default:
			combined.Append(s.table)
		}
	}

	log.Info("Observations fetched",
		"indicators", len(codes),
		"rows", len(combined.Rows),
		"skipped", len(result.unavailable),
		"empty", len(result.empty),
	)
	return combined, result, nil
}
