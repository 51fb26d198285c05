// Package otel builds the OpenTelemetry log provider used by the slog bridge.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/deepgtav/vpilot-collector/internal/config"
)

// DefaultServiceName is reported when the config leaves it empty.
const DefaultServiceName = "vpilot-collector"

// Provider owns the log provider for one collector process.
type Provider struct {
	logProvider *sdklog.LoggerProvider
	enabled     bool
}

// New creates the provider. Records are exported as JSON to logWriter
// and, when cfg.Endpoint is set, over OTLP/HTTP. A disabled config yields
// a provider whose LoggerProvider is nil.
func New(ctx context.Context, cfg config.OTelConfig, logWriter io.Writer) (*Provider, error) {
	p := &Provider{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return p, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var batchOpts []sdklog.BatchProcessorOption
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdklog.WithExportTimeout(cfg.BatchTimeout))
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}

	if logWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(logWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, batchOpts...)))
	}

	if cfg.Endpoint != "" {
		otlpOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp, batchOpts...)))
	}

	if len(opts) == 1 {
		return nil, errors.New("otel enabled but no log writer or endpoint configured")
	}

	p.logProvider = sdklog.NewLoggerProvider(opts...)
	return p, nil
}

// LoggerProvider returns the provider for the otelslog bridge, or nil.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a meter from the global meter provider.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Flush exports pending records.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("log flush failed: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logProvider == nil {
		return nil
	}
	if err := p.logProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown failed: %w", err)
	}
	return nil
}
