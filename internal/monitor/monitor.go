package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deepgtav/vpilot-collector/internal/dispatcher"
	"github.com/deepgtav/vpilot-collector/internal/pointcloud"
)

// StatusFile is written to the dataset directory while a session runs.
const StatusFile = "status.json"

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger    *slog.Logger
	Dir       string
	Every     int           // log a status line every N ticks
	Interval  time.Duration // status file refresh
	Backlog   func() int    // rows waiting in batched sinks, optional
	StartedAt time.Time
}

// Status is a snapshot of the running session
type Status struct {
	Session     string    `json:"session"`
	Trip        int       `json:"trip"`
	Trips       int       `json:"trips"`
	Ticks       uint64    `json:"ticks"`
	TripTicks   uint64    `json:"tripTicks"`
	Frames      uint64    `json:"frames"`
	LidarPoints uint64    `json:"lidarPoints"`
	Backlog     int       `json:"backlog"`
	Rate        float64   `json:"ticksPerSecond"`
	LastTick    time.Time `json:"lastTick"`
	Uptime      string    `json:"uptime"`
}

// Service tracks collection progress from dispatcher events
type Service struct {
	deps Dependencies

	mu     sync.RWMutex
	status Status

	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Every <= 0 {
		deps.Every = 500
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &Service{deps: deps}
}

// Attach registers the monitor's handlers on d.
func (s *Service) Attach(d *dispatcher.Dispatcher) {
	d.Register(dispatcher.KindSessionStart, s.handleSession, dispatcher.Named("monitor"))
	d.Register(dispatcher.KindTripStart, s.handleTrip, dispatcher.Named("monitor"))
	d.Register(dispatcher.KindTick, s.handleTick, dispatcher.Named("monitor"))
}

func (s *Service) handleSession(e dispatcher.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{Session: e.Session.ID}
	return nil
}

func (s *Service) handleTrip(e dispatcher.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Trip = e.Trip.Index
	s.status.Trips++
	s.status.TripTicks = 0
	return nil
}

func (s *Service) handleTick(e dispatcher.Event) error {
	rec := e.Record
	s.mu.Lock()
	s.status.Ticks++
	s.status.TripTicks++
	if rec.HasFrame() {
		s.status.Frames++
	}
	if n, err := pointcloud.Count(rec.Lidar); err == nil {
		s.status.LidarPoints += uint64(n)
	}
	s.status.LastTick = e.Timestamp
	count := s.status.Ticks
	s.mu.Unlock()

	if (count-1)%uint64(s.deps.Every) == 0 {
		st := s.Status()
		s.deps.Logger.Info("Collection status",
			"loop", count-1, "trip", st.Trip, "tripTicks", st.TripTicks,
			"frames", st.Frames, "lidarPoints", st.LidarPoints,
			"ticksPerSecond", fmt.Sprintf("%.1f", st.Rate), "backlog", st.Backlog)
	}
	return nil
}

// Status returns the current snapshot
func (s *Service) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	uptime := time.Since(s.deps.StartedAt)
	if secs := uptime.Seconds(); secs > 0 {
		st.Rate = float64(st.Ticks) / secs
	}
	st.Uptime = uptime.Truncate(time.Second).String()
	if s.deps.Backlog != nil {
		st.Backlog = s.deps.Backlog()
	}
	return st
}

// IsRunning returns whether the status file writer is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start starts the status file writer goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(s.deps.Dir, 0755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("error creating status dir: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					s.deps.Logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop stops the status file writer and writes a final snapshot
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return s.WriteStatus()
}

// WriteStatus replaces the status file with the current snapshot
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.deps.Dir, StatusFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
