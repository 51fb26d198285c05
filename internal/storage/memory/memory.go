package memory

import (
	"sync"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// TripRecord groups a trip with the records collected during it
type TripRecord struct {
	Trip    core.Trip
	Records []core.Record
	Ended   bool
}

// Backend keeps a session's records in memory. It backs tests and offline
// replay of stream files.
type Backend struct {
	session *core.Session
	trips   []*TripRecord
	records []core.Record // every record in arrival order

	closed bool
	mu     sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close marks the backend closed; collected data stays readable
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// StartSession begins a new session and drops previously collected data
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.trips = nil
	b.records = nil
	return nil
}

// StartTrip opens a new trip; later records are attached to it
func (b *Backend) StartTrip(t *core.Trip) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.current(); cur != nil {
		cur.Ended = true
	}
	b.trips = append(b.trips, &TripRecord{Trip: *t})
	return nil
}

// EndTrip closes the current trip
func (b *Backend) EndTrip() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.current(); cur != nil {
		cur.Ended = true
	}
	return nil
}

// Append stores a copy of rec, attaching it to the open trip if any
func (b *Backend) Append(rec *core.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, *rec)
	if cur := b.current(); cur != nil && !cur.Ended {
		cur.Records = append(cur.Records, *rec)
	}
	return nil
}

func (b *Backend) current() *TripRecord {
	if len(b.trips) == 0 {
		return nil
	}
	return b.trips[len(b.trips)-1]
}

// Session returns the current session, or nil before StartSession
func (b *Backend) Session() *core.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Trips returns a snapshot of the collected trips
func (b *Backend) Trips() []TripRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]TripRecord, len(b.trips))
	for i, tr := range b.trips {
		out[i] = TripRecord{
			Trip:    tr.Trip,
			Records: append([]core.Record(nil), tr.Records...),
			Ended:   tr.Ended,
		}
	}
	return out
}

// Records returns every collected record in arrival order
func (b *Backend) Records() []core.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]core.Record(nil), b.records...)
}

// Closed reports whether Close has been called
func (b *Backend) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
