// pkg/core/session.go
package core

import "time"

// Position3D is a world coordinate in simulator units.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Session represents one collection run against a simulator instance.
type Session struct {
	ID               string
	Host             string
	Port             int
	StartTime        time.Time
	CollectorVersion string
	DatasetPath      string
	FrameEnabled     bool
	LidarEnabled     bool
	FrameWidth       int
	FrameHeight      int
}

// Trip is a contiguous run of ticks between two route restarts.
// Index starts at 0 and increases by one for every trip in a session.
type Trip struct {
	Index     int
	SessionID string
	StartTick uint64
	StartTime time.Time
	Route     []Position3D
}
