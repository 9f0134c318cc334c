// Package observe provides the OpenTelemetry metrics and tracing used by
// VoxPrivate, plus HTTP middleware for the local control server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus format via [Init]. Attributes never carry transcript text or
// slot values; only command names, stages and error kinds.
//
// Tests should build their own [Metrics] with [NewMetrics] and a manual
// reader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all VoxPrivate metrics.
const meterName = "github.com/MrWong99/voxprivate"

// Pipeline stages used as the "stage" attribute.
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageResolve    = "resolve"
	StageDispatch   = "dispatch"
)

// Metrics holds every metric instrument of the application. The OTel types
// handle their own synchronisation.
type Metrics struct {
	// CaptureToResult is the latency from end of speech to command result.
	CaptureToResult metric.Float64Histogram

	TranscribeDuration metric.Float64Histogram
	ResolveDuration    metric.Float64Histogram
	DispatchDuration   metric.Float64Histogram

	// Utterances counts utterances emitted by the gate. Attribute:
	//   attribute.Bool("truncated", ...)
	Utterances metric.Int64Counter

	// Commands counts dispatch outcomes. Attributes:
	//   attribute.String("command", ...), attribute.String("outcome", ...)
	Commands metric.Int64Counter

	// Errors counts pipeline failures. Attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	Errors metric.Int64Counter

	BusyDrops  metric.Int64Counter
	Reconnects metric.Int64Counter

	// Running is 1 while the coordinator is running.
	Running metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by [Middleware]. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, dense around the
// 200 ms end-to-end target.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a [Metrics] from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = m.Int64Counter(name, metric.WithDescription(desc))
		return c
	}

	met.CaptureToResult = histogram("voxprivate.capture_to_result.duration", "Latency from end of speech to command result.")
	met.TranscribeDuration = histogram("voxprivate.transcribe.duration", "Latency of speech-to-text transcription.")
	met.ResolveDuration = histogram("voxprivate.resolve.duration", "Latency of intent resolution.")
	met.DispatchDuration = histogram("voxprivate.dispatch.duration", "Latency of command validation and execution.")

	met.Utterances = counter("voxprivate.utterances", "Utterances emitted by the voice activity gate.")
	met.Commands = counter("voxprivate.commands", "Dispatched commands by command and outcome.")
	met.Errors = counter("voxprivate.pipeline.errors", "Pipeline failures by stage and kind.")
	met.BusyDrops = counter("voxprivate.busy_drops", "Utterances dropped because the pipeline was busy.")
	met.Reconnects = counter("voxprivate.device.reconnects", "Audio device reconnection attempts.")
	if err != nil {
		return nil, err
	}

	if met.Running, err = m.Int64UpDownCounter("voxprivate.pipeline.running",
		metric.WithDescription("1 while the pipeline coordinator is running."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxprivate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built from
// [otel.GetMeterProvider] on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	var h metric.Float64Histogram
	switch stage {
	case StageTranscribe:
		h = m.TranscribeDuration
	case StageResolve:
		h = m.ResolveDuration
	case StageDispatch:
		h = m.DispatchDuration
	default:
		return
	}
	h.Record(ctx, d.Seconds())
}

// RecordCommand counts one dispatch outcome. outcome is "ok" or an error
// kind label.
func (m *Metrics) RecordCommand(ctx context.Context, command, outcome string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

// RecordError counts one pipeline failure.
func (m *Metrics) RecordError(ctx context.Context, stage, kind string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}

// RecordUtterance counts one utterance from the gate.
func (m *Metrics) RecordUtterance(ctx context.Context, truncated bool) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.Bool("truncated", truncated)))
}
