package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// swapped by tests
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// Config selects the log outputs.
type Config struct {
	Level string

	// File receives every record. When File is nil and Console is nil the
	// console handler writes to stdout.
	File    io.Writer
	Console io.Writer

	// Graylog is a GELF UDP address (host:port). Empty disables shipping.
	Graylog string

	// Provider enables OTel logs when set.
	Provider *sdklog.LoggerProvider
}

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
	gelf        *gelf.Writer
	context     atomic.Pointer[ContextProvider]
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. It replaces any previous setup.
func (m *SlogManager) Setup(cfg Config) error {
	lvl := parseLevel(cfg.Level)
	m.logProvider = cfg.Provider

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	console := cfg.Console
	if console == nil && cfg.File == nil {
		console = osStdout
	}
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}

	if cfg.File != nil {
		handlers = append(handlers, slog.NewTextHandler(cfg.File, handlerOpts))
	}

	if m.gelf != nil {
		_ = m.gelf.Close()
		m.gelf = nil
	}
	if cfg.Graylog != "" {
		w, err := gelf.NewWriter(cfg.Graylog)
		if err != nil {
			return fmt.Errorf("error creating graylog writer: %w", err)
		}
		w.Facility = "vpilot-collector"
		m.gelf = w
		handlers = append(handlers, slog.NewJSONHandler(w, handlerOpts))
	}

	if cfg.Provider != nil {
		otelHandler := otelslog.NewHandler("vpilot-collector", otelslog.WithLoggerProvider(cfg.Provider))
		handlers = append(handlers, otelHandler)
	}

	handler := NewContextHandler(NewMultiHandler(handlers...), m.attrs)

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", lvl.String())
	return nil
}

// SetContext installs the provider of per-record context attributes, such
// as the running session, trip and tick.
func (m *SlogManager) SetContext(p ContextProvider) {
	if p == nil {
		m.context.Store(nil)
		return
	}
	m.context.Store(&p)
}

func (m *SlogManager) attrs() []slog.Attr {
	p := m.context.Load()
	if p == nil {
		return nil
	}
	return (*p)()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// Close flushes OTel logs and closes the Graylog connection.
func (m *SlogManager) Close(ctx context.Context) error {
	err := m.Flush(ctx)
	if m.gelf != nil {
		if cerr := m.gelf.Close(); err == nil {
			err = cerr
		}
		m.gelf = nil
	}
	return err
}
