// Package gormstorage indexes tick telemetry in a relational database
// (SQLite or Postgres) through GORM. Rows are queued in memory and written
// in batches; the binary payloads stay in the stream files.
package gormstorage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/deepgtav/vpilot-collector/internal/model"
	"github.com/deepgtav/vpilot-collector/internal/model/convert"
	"github.com/deepgtav/vpilot-collector/internal/queue"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

const defaultFlushInterval = time.Second

// Dependencies holds everything the backend needs.
type Dependencies struct {
	DB            *gorm.DB // nil keeps rows queued (unit tests)
	Logger        *slog.Logger
	BatchSize     int
	FlushInterval time.Duration
}

// Backend writes sessions, trips and ticks through GORM.
type Backend struct {
	deps Dependencies

	queue   *queue.Queue[model.Tick]
	session *core.Session
	trip    *model.Trip
	last    uint64 // last tick seen in the open trip

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// New creates a GORM backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 100
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{deps: deps}
}

// Init migrates the schema and starts the periodic flush.
func (b *Backend) Init() error {
	b.queue = queue.New[model.Tick]()
	b.stopChan = make(chan struct{})

	if b.deps.DB != nil {
		if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
		b.wg.Add(1)
		go b.flushLoop()
	}
	return nil
}

// Close stops the flush loop, writes queued rows and stamps the session end.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed || b.stopChan == nil {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.endTripLocked(); err != nil {
		return err
	}
	if err := b.flushLocked(); err != nil {
		return err
	}
	if b.deps.DB != nil && b.session != nil {
		err := b.deps.DB.Model(&model.Session{}).
			Where("id = ?", b.session.ID).
			Update("end_time", sql.NullTime{Time: time.Now(), Valid: true}).Error
		if err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
	}
	return nil
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	if b.deps.DB == nil {
		return nil
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// StartTrip inserts the trip row, closing any open trip first.
func (b *Backend) StartTrip(t *core.Trip) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.endTripLocked(); err != nil {
		return err
	}
	row, err := convert.CoreToTrip(*t)
	if err != nil {
		return err
	}
	if b.deps.DB != nil {
		if err := b.deps.DB.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert trip %d: %w", t.Index, err)
		}
	}
	b.trip = &row
	b.last = t.StartTick
	return nil
}

// EndTrip flushes queued ticks and stamps the trip's last tick.
func (b *Backend) EndTrip() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endTripLocked()
}

// Append queues rec as a tick row, writing a batch once BatchSize rows
// are queued.
func (b *Backend) Append(rec *core.Record) error {
	sessionID := ""
	b.mu.Lock()
	if b.session != nil {
		sessionID = b.session.ID
	}
	if b.trip != nil && rec.Tick > b.last {
		b.last = rec.Tick
	}
	b.mu.Unlock()

	tick, err := convert.RecordToTick(sessionID, rec)
	if err != nil {
		return fmt.Errorf("tick %d: %w", rec.Tick, err)
	}
	b.queue.Push(tick)

	if b.queue.Len() >= b.deps.BatchSize {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.flushLocked()
	}
	return nil
}

// Pending returns the number of queued tick rows.
func (b *Backend) Pending() int {
	return b.queue.Len()
}

func (b *Backend) endTripLocked() error {
	if b.trip == nil {
		return nil
	}
	if err := b.flushLocked(); err != nil {
		return err
	}
	if b.deps.DB != nil {
		err := b.deps.DB.Model(&model.Trip{}).
			Where("id = ?", b.trip.ID).
			Update("end_tick", sql.NullInt64{Int64: int64(b.last), Valid: true}).Error
		if err != nil {
			return fmt.Errorf("failed to close trip %d: %w", b.trip.Index, err)
		}
	}
	b.trip = nil
	return nil
}

func (b *Backend) flushLocked() error {
	if b.deps.DB == nil || b.queue.Empty() {
		return nil
	}
	rows := b.queue.Drain(0)
	start := time.Now()
	if err := b.deps.DB.CreateInBatches(&rows, b.deps.BatchSize).Error; err != nil {
		return fmt.Errorf("failed to write %d ticks: %w", len(rows), err)
	}
	b.deps.Logger.Debug("Wrote tick rows", "count", len(rows), "duration", time.Since(start))
	return nil
}

func (b *Backend) flushLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.mu.Lock()
			if err := b.flushLocked(); err != nil {
				b.deps.Logger.Error("Periodic tick flush failed", "error", err)
			}
			b.mu.Unlock()
		}
	}
}
