package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// BatchExtractor reads up to batchSize raw telemetry messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// Transformer converts a raw message into a validated grid reading.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawMessage) (domain.GridReading, error)
}

// BatchLoader applies multiple grid readings to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, readings []domain.GridReading) error
}

// Pipeline orchestrates the telemetry extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has applied at least one
// reading, or an error describing why ingest is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("telemetry pipeline has not applied any readings yet")
	}
	return nil
}

// Retry delays after an extract or load failure.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// backoff is the delay before the next retry. It doubles on every failure
// up to maxBackoff and resets once a batch arrives.
type backoff struct {
	next time.Duration
}

func (b *backoff) reset() { b.next = initialBackoff }

// wait sleeps for the current delay. It returns false when ctx ends first.
func (b *backoff) wait(ctx context.Context) bool {
	if ctx.Err() != nil || !retry.SleepWithContext(ctx, b.next) {
		return false
	}
	b.next = retry.NextBackoff(b.next, maxBackoff)
	return true
}

// Run consumes telemetry until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	b := &backoff{}
	b.reset()
	for ctx.Err() == nil {
		if !p.step(ctx, b) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// step consumes one batch. It returns false when the loop should end.
func (p *Pipeline) step(ctx context.Context, b *backoff) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	switch {
	case err != nil && ctx.Err() != nil:
		return false
	case err != nil:
		p.logger.Error("extract telemetry failed", "error", err)
		return b.wait(ctx)
	case len(batch) == 0:
		return true
	}

	b.reset()
	p.metrics.TelemetryConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))

	applied, err := p.apply(ctx, batch, b)
	if err != nil {
		// The readings stay uncommitted and are redelivered to the group.
		p.logger.Warn("telemetry batch left unapplied", "error", err, "readings", applied)
		return false
	}
	if applied > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// apply parses the batch, stores the valid readings and commits offsets.
// Invalid messages are committed straight away so they are not redelivered;
// valid ones are committed only after the store accepts them. The reader has
// already moved past the batch, so a store failure is retried with backoff
// until it succeeds or ctx ends, in which case the number of unapplied
// readings is returned with the error.
func (p *Pipeline) apply(ctx context.Context, batch []domain.RawMessage, b *backoff) (int, error) {
	readings := make([]domain.GridReading, 0, len(batch))
	accepted := make([]domain.RawMessage, 0, len(batch))

	for _, raw := range batch {
		r, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("rejected telemetry message",
				"error", err,
				"key", string(raw.Key),
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TelemetryRejected.Inc()
			p.commit(ctx, raw)
			continue
		}
		readings = append(readings, r)
		accepted = append(accepted, raw)
	}
	if len(readings) == 0 {
		return 0, nil
	}

	for {
		err := p.loader.LoadBatch(ctx, readings)
		if err == nil {
			break
		}
		p.logger.Error("load telemetry failed", "error", err, "readings", len(readings))
		if !b.wait(ctx) {
			return len(readings), err
		}
	}
	b.reset()
	p.metrics.TelemetryApplied.Add(float64(len(readings)))
	for _, raw := range accepted {
		p.commit(ctx, raw)
	}
	return len(readings), nil
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit telemetry offset failed", "error", err, "partition", raw.Partition, "offset", raw.Offset)
	}
}
