package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgtav/vpilot-collector/internal/config"
	gormstorage "github.com/deepgtav/vpilot-collector/internal/storage/gorm"
	"github.com/deepgtav/vpilot-collector/internal/storage/memory"
	"github.com/deepgtav/vpilot-collector/internal/storage/stream"
	"github.com/deepgtav/vpilot-collector/internal/storage/websocket"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

var (
	_ Backend      = (*memory.Backend)(nil)
	_ Backend      = (*stream.Backend)(nil)
	_ Backend      = (*gormstorage.Backend)(nil)
	_ Backend      = (*websocket.Backend)(nil)
	_ FileProducer = (*stream.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageConfig{
		Stream: config.StreamConfig{Dir: dir, Compression: "gzip", Level: 9, DivideByTrip: true},
		SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "vpilot.db"), BatchSize: 10},
	}

	b, err := NewBackend(NameStream, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &stream.Backend{}, b)

	b, err = NewBackend(NameMemory, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = NewBackend(NameWebSocket, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &websocket.Backend{}, b)

	_, err = NewBackend("redis", cfg, nil)
	assert.Error(t, err)
}

func TestNewBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "vpilot.db")
	cfg := config.StorageConfig{SQLite: config.SQLiteConfig{Path: path, BatchSize: 10}}

	b, err := NewBackend(NameSQLite, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ID: "s"}))
	require.NoError(t, b.StartTrip(&core.Trip{Index: 0, SessionID: "s"}))
	require.NoError(t, b.Append(&core.Record{Tick: 0, Control: []byte(`{"speed":3}`)}))
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
	assert.FileExists(t, path)
}

func TestNewBackend_SQLiteMemoryDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.db")
	cfg := config.StorageConfig{SQLite: config.SQLiteConfig{Path: path, Memory: true}}

	b, err := NewBackend(NameSQLite, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ID: "m"}))
	require.NoError(t, b.Close())
	assert.FileExists(t, path)
}

func TestNewBackends(t *testing.T) {
	cfg := config.StorageConfig{
		Backends: []string{NameMemory, NameStream},
		Stream:   config.StreamConfig{Dir: t.TempDir()},
	}
	bs, err := NewBackends(cfg, nil)
	require.NoError(t, err)
	require.Len(t, bs, 2)
	assert.IsType(t, &memory.Backend{}, bs[0])
	assert.IsType(t, &stream.Backend{}, bs[1])

	_, err = NewBackends(config.StorageConfig{}, nil)
	assert.Error(t, err)

	cfg.Backends = []string{NameMemory, "bogus"}
	_, err = NewBackends(cfg, nil)
	assert.Error(t, err)
}
