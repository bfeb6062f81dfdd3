package telemetry

import (
	"context"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Discard exporters stand in when no OTLP endpoint is configured. Spans are
// still created, so log records keep their trace and span ids.
type discardSpanExporter struct{}

func (discardSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (discardSpanExporter) Shutdown(context.Context) error { return nil }

type discardMetricExporter struct{}

func (discardMetricExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (discardMetricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (discardMetricExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }

func (discardMetricExporter) ForceFlush(context.Context) error { return nil }

func (discardMetricExporter) Shutdown(context.Context) error { return nil }

func NewDiscardTraceExporter() sdktrace.SpanExporter {
	return discardSpanExporter{}
}

func NewDiscardMetricExporter() sdkmetric.Exporter {
	return discardMetricExporter{}
}
