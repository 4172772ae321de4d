package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hkracing/racesync/internal/schema"
)

// PipelineMetrics holds the instruments emitted by the sync pipeline.
type PipelineMetrics struct {
	uploads           metric.Int64Counter
	uploadDuration    metric.Float64Histogram
	fetches           metric.Int64Counter
	duplicatesRemoved metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline instruments on the given meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	uploads, err := meter.Int64Counter("upload.records",
		metric.WithDescription("Record upload outcomes"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create upload counter: %w", err)
	}
	uploadDuration, err := meter.Float64Histogram("upload.duration",
		metric.WithDescription("Record upload duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create upload duration histogram: %w", err)
	}
	fetches, err := meter.Int64Counter("source.fetches",
		metric.WithDescription("Upstream day fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create fetch counter: %w", err)
	}
	duplicatesRemoved, err := meter.Int64Counter("audit.duplicates_removed",
		metric.WithDescription("Duplicate records deleted by the audit sweep"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duplicate counter: %w", err)
	}
	return &PipelineMetrics{
		uploads:           uploads,
		uploadDuration:    uploadDuration,
		fetches:           fetches,
		duplicatesRemoved: duplicatesRemoved,
	}, nil
}

// RecordOutcomes counts upload outcomes per collection and result.
func (m *PipelineMetrics) RecordOutcomes(ctx context.Context, outcomes []schema.UploadOutcome) {
	if m == nil {
		return
	}
	for _, outcome := range outcomes {
		m.uploads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("collection", outcome.Collection),
			attribute.String("result", string(outcome.Result)),
		))
	}
}

// RecordUploadDuration observes one day's upload latency.
func (m *PipelineMetrics) RecordUploadDuration(ctx context.Context, venue schema.Venue, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploadDuration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("venue", string(venue)),
	))
}

// RecordFetch counts one upstream fetch attempt.
func (m *PipelineMetrics) RecordFetch(ctx context.Context, venue schema.Venue, ok bool) {
	if m == nil {
		return
	}
	m.fetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", string(venue)),
		attribute.Bool("ok", ok),
	))
}

// RecordDuplicatesRemoved counts rows deleted by one audit sweep.
func (m *PipelineMetrics) RecordDuplicatesRemoved(ctx context.Context, collection string, removed int) {
	if m == nil || removed == 0 {
		return
	}
	m.duplicatesRemoved.Add(ctx, int64(removed), metric.WithAttributes(
		attribute.String("collection", collection),
	))
}
