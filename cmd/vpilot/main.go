// Command vpilot connects to a DeepGTAV simulator, drives a collection
// session and stores every tick in the configured backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/deepgtav/vpilot-collector/internal/config"
	"github.com/deepgtav/vpilot-collector/internal/dispatcher"
	"github.com/deepgtav/vpilot-collector/internal/influx"
	"github.com/deepgtav/vpilot-collector/internal/logging"
	"github.com/deepgtav/vpilot-collector/internal/monitor"
	intOtel "github.com/deepgtav/vpilot-collector/internal/otel"
	"github.com/deepgtav/vpilot-collector/internal/session"
	"github.com/deepgtav/vpilot-collector/internal/storage"
	"github.com/deepgtav/vpilot-collector/internal/transport"
)

// set at build time via ldflags
var (
	CurrentVersion = "0.0.1"
	BuildDate      = "unknown"
)

const influxQueueSize = 1000

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vpilot:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	configDir, _ := flags.GetString("config")
	if configDir == "" {
		configDir = "."
	}
	if err := config.Load(configDir, flags); err != nil {
		return err
	}

	startedAt := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// logging
	logPath := logging.LogFilePath(config.GetString("logsDir"), "vpilot", startedAt)
	logFile, err := logging.OpenLogFile(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	var otelWriter io.Writer
	if otelCfg.Enabled {
		otelFile, err := logging.OpenLogFile(logging.LogFilePath(config.GetString("logsDir"), "vpilot.otel", startedAt))
		if err != nil {
			return fmt.Errorf("failed to open otel log file: %w", err)
		}
		defer otelFile.Close()
		otelWriter = otelFile
	}
	provider, err := intOtel.New(ctx, otelCfg, otelWriter)
	if err != nil {
		return err
	}
	defer provider.Shutdown(context.Background())

	logCfg := logging.Config{
		Level:    config.GetString("logLevel"),
		File:     logFile,
		Console:  os.Stdout,
		Provider: provider.LoggerProvider(),
	}
	if config.GetBool("graylog.enabled") {
		logCfg.Graylog = config.GetString("graylog.address")
	}
	logMgr := logging.NewSlogManager()
	if err := logMgr.Setup(logCfg); err != nil {
		return err
	}
	defer logMgr.Close(context.Background())
	logger := logMgr.Logger()
	logger.Info("Starting vpilot collector", "version", CurrentVersion, "buildDate", BuildDate, "logFile", logPath)

	// sinks
	d, err := dispatcher.New(logger.With("component", "dispatcher"))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer d.Close()

	storageCfg := config.GetStorageConfig()
	backends, err := storage.NewBackends(storageCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for i, b := range backends {
			if err := b.Close(); err != nil {
				logger.Error("Failed to close storage backend", "backend", storageCfg.Backends[i], "error", err)
			}
		}
	}()
	for i, b := range backends {
		if err := b.Init(); err != nil {
			return fmt.Errorf("init %s backend: %w", storageCfg.Backends[i], err)
		}
		session.AttachBackend(d, storageCfg.Backends[i], b)
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		mgr := influx.NewManager(logger.With("component", "influx"), influxCfg)
		if err := mgr.Connect(ctx); err != nil {
			logger.Warn("InfluxDB disabled", "error", err)
		} else {
			d.Register(dispatcher.KindTick, func(e dispatcher.Event) error {
				return mgr.WriteTick(e.Session.ID, e.Record)
			}, dispatcher.Named("influx"), dispatcher.Buffered(influxQueueSize))
			// drain the buffered handler before the writer goes away
			defer func() {
				d.Close()
				mgr.Close()
			}()
		}
	}

	sessCfg := config.GetSessionConfig()
	mon := monitor.NewService(monitor.Dependencies{
		Logger:    logger.With("component", "monitor"),
		Dir:       sessCfg.DatasetPath,
		Every:     sessCfg.StatusEvery,
		Backlog:   backlog(backends),
		StartedAt: startedAt,
	})
	mon.Attach(d)
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	// simulator
	scenario, err := config.Scenario()
	if err != nil {
		return err
	}
	conn, err := transport.Dial(ctx, sessCfg.Host, sessCfg.Port)
	if err != nil {
		return err
	}
	logger.Info("Connected to simulator", "addr", conn.RemoteAddr())

	ctrl, err := session.New(conn, d, session.Options{
		Scenario:         scenario,
		Dataset:          config.Dataset(),
		Host:             sessCfg.Host,
		Port:             sessCfg.Port,
		DatasetPath:      sessCfg.DatasetPath,
		CollectorVersion: CurrentVersion,
		Logger:           logger,
		Prompter:         session.NewLinePrompter(os.Stdin, os.Stdout),
		OnDecodeError:    decodePolicy(config.GetString("decodeErrors"), logger),
	})
	if err != nil {
		conn.Close()
		return err
	}
	logMgr.SetContext(ctrl.LogContext)
	defer logMgr.SetContext(nil)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go watchSignals(ctx, sigs, ctrl, func() {
		cancel()
		// unblocks a Receive waiting on a stalled simulator
		conn.Close()
	}, logger)

	if err := ctrl.Run(ctx); err != nil {
		logger.Error("Session failed", "ticks", ctrl.Ticks(), "error", err)
		return err
	}
	logger.Info("Collector exiting", "ticks", ctrl.Ticks())
	return nil
}

// watchSignals pauses the session on an interrupt and calls stop on any
// other signal. It returns once ctx is done.
func watchSignals(ctx context.Context, sigs <-chan os.Signal, p interface{ Pause() }, stop func(), logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if sig == os.Interrupt {
				p.Pause()
				continue
			}
			logger.Info("Received signal, stopping", "signal", sig.String())
			stop()
		}
	}
}

// backlog sums the rows waiting in batched backends.
func backlog(backends []storage.Backend) func() int {
	return func() int {
		n := 0
		for _, b := range backends {
			if p, ok := b.(interface{ Pending() int }); ok {
				n += p.Pending()
			}
		}
		return n
	}
}

func decodePolicy(name string, logger *slog.Logger) session.DecodeErrorPolicy {
	if name != "skip" {
		return session.AbortOnDecodeError
	}
	return func(tick uint64, err error) error {
		logger.Warn("Skipping malformed tick", "tick", tick, "error", err)
		return nil
	}
}
