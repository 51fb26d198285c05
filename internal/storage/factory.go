package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/deepgtav/vpilot-collector/internal/config"
	"github.com/deepgtav/vpilot-collector/internal/database"
	gormstorage "github.com/deepgtav/vpilot-collector/internal/storage/gorm"
	"github.com/deepgtav/vpilot-collector/internal/storage/memory"
	"github.com/deepgtav/vpilot-collector/internal/storage/stream"
	"github.com/deepgtav/vpilot-collector/internal/storage/websocket"
)

// Backend names accepted in storage.backends.
const (
	NameStream    = "stream"
	NameMemory    = "memory"
	NameSQLite    = "sqlite"
	NamePostgres  = "postgres"
	NameWebSocket = "websocket"
)

// NewBackend creates the named storage backend.
func NewBackend(name string, cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch name {
	case NameStream:
		return stream.New(cfg.Stream), nil
	case NameMemory:
		return memory.New(), nil
	case NameSQLite:
		path := cfg.SQLite.Path
		if cfg.SQLite.Memory {
			path = ""
		}
		db, err := database.GetSqliteDB(path)
		if err != nil {
			return nil, fmt.Errorf("sqlite backend: %w", err)
		}
		b := gormstorage.New(gormstorage.Dependencies{
			DB:        db,
			Logger:    logger.With("backend", NameSQLite),
			BatchSize: cfg.SQLite.BatchSize,
		})
		return &dbBackend{Backend: b, db: db, dumpPath: dumpPath(cfg.SQLite)}, nil
	case NamePostgres:
		m := database.NewManager(logger, cfg.SQLite.Path)
		if err := m.Connect(cfg.Postgres); err != nil {
			return nil, fmt.Errorf("postgres backend: %w", err)
		}
		b := gormstorage.New(gormstorage.Dependencies{
			DB:        m.DB,
			Logger:    logger.With("backend", NamePostgres),
			BatchSize: cfg.SQLite.BatchSize,
		})
		return &dbBackend{Backend: b, db: m.DB}, nil
	case NameWebSocket:
		return websocket.New(cfg.WebSocket, logger.With("backend", NameWebSocket)), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", name)
	}
}

// NewBackends creates every backend listed in cfg.Backends, in order.
// Backends already created are closed if a later one fails.
func NewBackends(cfg config.StorageConfig, logger *slog.Logger) ([]Backend, error) {
	if len(cfg.Backends) == 0 {
		return nil, errors.New("no storage backends configured")
	}
	out := make([]Backend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		b, err := NewBackend(name, cfg, logger)
		if err != nil {
			for _, created := range out {
				_ = created.Close()
			}
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func dumpPath(cfg config.SQLiteConfig) string {
	if cfg.Memory {
		return cfg.Path
	}
	return ""
}

// dbBackend owns the connection behind a GORM backend.
type dbBackend struct {
	*gormstorage.Backend
	db       *gorm.DB
	dumpPath string
	closed   bool
}

func (b *dbBackend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.Backend.Close()
	if b.dumpPath != "" {
		err = errors.Join(err, database.DumpMemoryDBToDisk(b.db, b.dumpPath))
	}
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		err = errors.Join(err, sqlDB.Close())
	}
	return err
}
