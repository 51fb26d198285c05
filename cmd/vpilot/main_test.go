package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgtav/vpilot-collector/internal/storage"
	"github.com/deepgtav/vpilot-collector/internal/storage/memory"
)

type pendingBackend struct {
	storage.Backend
	n int
}

func (b pendingBackend) Pending() int { return b.n }

func TestBacklog(t *testing.T) {
	f := backlog([]storage.Backend{memory.New(), pendingBackend{n: 3}, pendingBackend{n: 4}})
	assert.Equal(t, 7, f())
}

func TestDecodePolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	boom := errors.New("boom")

	assert.ErrorIs(t, decodePolicy("abort", logger)(1, boom), boom)
	assert.ErrorIs(t, decodePolicy("", logger)(1, boom), boom)
	assert.NoError(t, decodePolicy("skip", logger)(1, boom))
}

type countingPauser struct{ n atomic.Int32 }

func (p *countingPauser) Pause() { p.n.Add(1) }

func TestWatchSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sigs := make(chan os.Signal)
	p := &countingPauser{}
	var closed atomic.Bool
	done := make(chan struct{})
	go func() {
		watchSignals(ctx, sigs, p, func() {
			closed.Store(true)
			cancel()
		}, logger)
		close(done)
	}()

	sigs <- os.Interrupt
	sigs <- os.Interrupt
	assert.False(t, closed.Load())

	sigs <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "watchSignals did not return after SIGTERM")
	}
	assert.True(t, closed.Load())
	assert.Equal(t, int32(2), p.n.Load())
}
