package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds metrics of the reference photo service
type HTTPMetrics struct {
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTP server metrics instruments
func NewHTTPMetrics() (*HTTPMetrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCounter, err := meter.Int64Counter(
		"http.server.request_count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
	}, nil
}

// CollectionMetrics holds metrics of the photo collection manager
type CollectionMetrics struct {
	fetchCount    metric.Int64Counter
	fetchDuration metric.Float64Histogram
	staleDrops    metric.Int64Counter
	errorCount    metric.Int64Counter
	transitions   metric.Int64Counter
}

// NewCollectionMetrics creates collection metrics instruments
func NewCollectionMetrics() (*CollectionMetrics, error) {
	meter := otel.Meter(instrumentationName)

	fetchCount, err := meter.Int64Counter(
		"journal.collection.fetch_count",
		metric.WithDescription("Number of collection fetches by source and intent"),
		metric.WithUnit("{fetches}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"journal.collection.fetch_duration",
		metric.WithDescription("Collection fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	staleDrops, err := meter.Int64Counter(
		"journal.collection.stale_drops",
		metric.WithDescription("Fetch results dropped because the session or intent changed"),
		metric.WithUnit("{results}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"journal.collection.error_count",
		metric.WithDescription("Collection operation failures by kind"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"journal.session.transitions",
		metric.WithDescription("Session transitions observed by the collection"),
		metric.WithUnit("{transitions}"),
	)
	if err != nil {
		return nil, err
	}

	return &CollectionMetrics{
		fetchCount:    fetchCount,
		fetchDuration: fetchDuration,
		staleDrops:    staleDrops,
		errorCount:    errorCount,
		transitions:   transitions,
	}, nil
}

// RecordFetch records one completed fetch. A nil receiver is a no-op.
func (m *CollectionMetrics) RecordFetch(ctx context.Context, source, intent string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("intent", intent),
	)
	m.fetchCount.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordStaleDrop counts a discarded fetch result
func (m *CollectionMetrics) RecordStaleDrop(ctx context.Context, intent string) {
	if m == nil {
		return
	}
	m.staleDrops.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordError counts a failed operation by failure kind
func (m *CollectionMetrics) RecordError(ctx context.Context, operation, kind string) {
	if m == nil {
		return
	}
	m.errorCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("kind", kind),
	))
}

// RecordTransition counts a session status change
func (m *CollectionMetrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
