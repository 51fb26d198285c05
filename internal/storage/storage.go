package storage

import "github.com/deepgtav/vpilot-collector/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session and trip management
	StartSession(s *core.Session) error
	StartTrip(t *core.Trip) error
	EndTrip() error

	// Record persistence, called once per tick in arrival order
	Append(rec *core.Record) error
}

// FileProducer is an optional interface for backends that write files the
// reader tool can open.
type FileProducer interface {
	Paths() []string
}
