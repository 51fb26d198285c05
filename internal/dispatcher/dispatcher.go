package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Event kinds emitted by the session controller.
const (
	KindSessionStart = "session_start"
	KindTripStart    = "trip_start"
	KindTripEnd      = "trip_end"
	KindTick         = "tick"
)

// Event is one step of a collection session.
type Event struct {
	Kind      string
	Session   *core.Session
	Trip      *core.Trip   // trip_start
	Record    *core.Record // tick
	Timestamp time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	name       string
	bufferSize int
	blocking   bool
	logged     bool
}

// Named labels the handler in logs and metrics.
func Named(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Buffered makes the handler async with a queue of the given size. Errors
// from a buffered handler are logged, not returned from Dispatch.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to every handler registered for their kind,
// in registration order.
type Dispatcher struct {
	handlers map[string][]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback and shutdown
	mu      sync.RWMutex
	buffers map[string]chan Event
	wg      sync.WaitGroup
	closed  bool
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider,
// which is a no-op unless one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
	}

	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

// Register adds a handler for the given event kind with optional configuration.
func (d *Dispatcher) Register(kind string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("%s#%d", kind, len(d.handlers[kind]))
	}

	handler := d.withMetrics(kind, cfg.name, h)

	if cfg.logged {
		handler = d.withLogging(kind, cfg.name, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(kind+"/"+cfg.name, cfg.bufferSize, cfg.blocking, handler)
	}

	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Dispatch runs every handler registered for e.Kind. All handlers run even
// if one fails; the failures are joined.
func (d *Dispatcher) Dispatch(e Event) error {
	hs, ok := d.handlers[e.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind: %s", e.Kind)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	var errs []error
	for _, h := range hs {
		if err := h(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasHandler returns true if a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind string) bool {
	_, ok := d.handlers[kind]
	return ok
}

// Close stops accepting buffered events and waits for queued ones to be
// handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withMetrics(kind, name string, h HandlerFunc) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("handler", name))
	return func(e Event) error {
		err := h(e)
		if err != nil {
			d.failed.Add(context.Background(), 1, attrs)
		} else {
			d.processed.Add(context.Background(), 1, attrs)
		}
		return err
	}
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	nameAttr := attribute.String("handler", name)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			if err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "handler", name, "kind", e.Kind, "error", err)
			}
		}
	}()

	return func(e Event) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return fmt.Errorf("dispatcher closed: %s", name)
		}
		if blocking {
			buffer <- e
			return nil
		}
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
			d.logger.Debug("queue full, dropping event", "handler", name, "kind", e.Kind)
			return nil
		}
	}
}

func (d *Dispatcher) withLogging(kind, name string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "kind", kind, "handler", name)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "kind", kind, "handler", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", kind, "handler", name, "duration", time.Since(start))
		}

		return err
	}
}
