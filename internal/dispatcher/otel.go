package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/deepgtav/vpilot-collector/internal/dispatcher"

func (d *Dispatcher) initMetrics() error {
	m := otel.Meter(instrumentationName)
	var err error

	if d.processed, err = m.Int64Counter("vpilot.dispatcher.handled",
		metric.WithDescription("Events a handler accepted, by kind and handler")); err != nil {
		return fmt.Errorf("creating handled counter: %w", err)
	}
	if d.failed, err = m.Int64Counter("vpilot.dispatcher.failed",
		metric.WithDescription("Events a handler returned an error for")); err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("vpilot.dispatcher.dropped",
		metric.WithDescription("Events dropped because a sink queue was full")); err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}

	if d.queueSize, err = m.Int64ObservableGauge("vpilot.dispatcher.backlog",
		metric.WithDescription("Events waiting in each buffered sink")); err != nil {
		return fmt.Errorf("creating backlog gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for name, buf := range d.buffers {
			o.ObserveInt64(d.queueSize, int64(len(buf)), metric.WithAttributes(attribute.String("handler", name)))
		}
		return nil
	}, d.queueSize)
	if err != nil {
		return fmt.Errorf("registering backlog callback: %w", err)
	}
	return nil
}
