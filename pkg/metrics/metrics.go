// Package metrics exports session telemetry to an OpenTelemetry collector.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/teslashibe/go-linkcup"

// Recorder receives gateway telemetry.
type Recorder interface {
	// RecordEvent counts one engine event by type.
	RecordEvent(ctx context.Context, eventType string)
	// RecordThrusts adds thrusts counted since the previous call.
	RecordThrusts(ctx context.Context, n int)
	// RecordSession records a finished session.
	RecordSession(ctx context.Context, interaction time.Duration, climaxed bool)
	// RecordConnection tracks connected devices.
	RecordConnection(ctx context.Context, connected bool)
	// Close flushes and shuts down the recorder.
	Close(ctx context.Context) error
}

// Config holds OTLP exporter configuration.
type Config struct {
	Endpoint    string
	ServiceName string
	Interval    time.Duration
	Insecure    bool
}

// OTel records metrics through an OpenTelemetry MeterProvider.
type OTel struct {
	provider    *sdkmetric.MeterProvider
	events      metric.Int64Counter
	thrusts     metric.Int64Counter
	sessions    metric.Int64Counter
	interaction metric.Float64Histogram
	devices     metric.Int64UpDownCounter
}

// NewExporter creates a recorder that pushes to an OTLP/gRPC collector.
func NewExporter(ctx context.Context, cfg Config) (*OTel, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("metrics: endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	return NewWithReader(ctx, cfg.ServiceName, sdkmetric.NewPeriodicReader(exp, readerOpts...))
}

// NewWithReader creates a recorder collecting through reader.
func NewWithReader(ctx context.Context, serviceName string, reader sdkmetric.Reader) (*OTel, error) {
	if serviceName == "" {
		serviceName = "linkcup"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(meterName)

	m := &OTel{provider: provider}

	if m.events, err = meter.Int64Counter(
		"linkcup_events_total",
		metric.WithDescription("Session engine events by type"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	if m.thrusts, err = meter.Int64Counter(
		"linkcup_thrusts_total",
		metric.WithDescription("Thrusts counted across all sessions"),
		metric.WithUnit("{thrust}"),
	); err != nil {
		return nil, fmt.Errorf("creating thrusts counter: %w", err)
	}

	if m.sessions, err = meter.Int64Counter(
		"linkcup_sessions_total",
		metric.WithDescription("Finished sessions"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	if m.interaction, err = meter.Float64Histogram(
		"linkcup_session_interaction_seconds",
		metric.WithDescription("Effective interaction time per session"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating interaction histogram: %w", err)
	}

	if m.devices, err = meter.Int64UpDownCounter(
		"linkcup_devices_connected",
		metric.WithDescription("Connected devices"),
		metric.WithUnit("{device}"),
	); err != nil {
		return nil, fmt.Errorf("creating devices gauge: %w", err)
	}

	return m, nil
}

func (m *OTel) RecordEvent(ctx context.Context, eventType string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *OTel) RecordThrusts(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.thrusts.Add(ctx, int64(n))
}

func (m *OTel) RecordSession(ctx context.Context, interaction time.Duration, climaxed bool) {
	opt := metric.WithAttributes(attribute.Bool("climaxed", climaxed))
	m.sessions.Add(ctx, 1, opt)
	m.interaction.Record(ctx, interaction.Seconds(), opt)
}

func (m *OTel) RecordConnection(ctx context.Context, connected bool) {
	if connected {
		m.devices.Add(ctx, 1)
	} else {
		m.devices.Add(ctx, -1)
	}
}

// Close shuts down the provider and flushes any pending metrics.
func (m *OTel) Close(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordEvent(context.Context, string)                {}
func (Noop) RecordThrusts(context.Context, int)                 {}
func (Noop) RecordSession(context.Context, time.Duration, bool) {}
func (Noop) RecordConnection(context.Context, bool)             {}
func (Noop) Close(context.Context) error                        { return nil }
