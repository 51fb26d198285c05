// Package streaming defines the live telemetry feed protocol.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeStartTrip    = "start_trip"
	TypeEndTrip      = "end_trip"
	TypeTick         = "tick"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a collection session.
type StartSessionPayload struct {
	ID               string    `json:"id"`
	Host             string    `json:"host"`
	Port             int       `json:"port"`
	StartTime        time.Time `json:"startTime"`
	CollectorVersion string    `json:"collectorVersion"`
	FrameEnabled     bool      `json:"frameEnabled"`
	LidarEnabled     bool      `json:"lidarEnabled"`
	FrameWidth       int       `json:"frameWidth,omitempty"`
	FrameHeight      int       `json:"frameHeight,omitempty"`
}

// NewStartSessionPayload builds the payload for s.
func NewStartSessionPayload(s *core.Session) StartSessionPayload {
	return StartSessionPayload{
		ID:               s.ID,
		Host:             s.Host,
		Port:             s.Port,
		StartTime:        s.StartTime,
		CollectorVersion: s.CollectorVersion,
		FrameEnabled:     s.FrameEnabled,
		LidarEnabled:     s.LidarEnabled,
		FrameWidth:       s.FrameWidth,
		FrameHeight:      s.FrameHeight,
	}
}

// TripPayload announces the start of a trip.
type TripPayload struct {
	Index     int               `json:"index"`
	SessionID string            `json:"sessionId"`
	StartTick uint64            `json:"startTick"`
	StartTime time.Time         `json:"startTime"`
	Route     []core.Position3D `json:"route,omitempty"`
}

// NewTripPayload builds the payload for t.
func NewTripPayload(t *core.Trip) TripPayload {
	return TripPayload{
		Index:     t.Index,
		SessionID: t.SessionID,
		StartTick: t.StartTick,
		StartTime: t.StartTime,
		Route:     t.Route,
	}
}

// TickPayload carries one tick's control message. Binary payloads are not
// forwarded; only their sizes are.
type TickPayload struct {
	Tick       uint64          `json:"tick"`
	Trip       int             `json:"trip"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Control    json.RawMessage `json:"control"`
	FrameBytes int             `json:"frameBytes,omitempty"`
	LidarBytes int             `json:"lidarBytes,omitempty"`
}

// NewTickPayload builds the payload for rec.
func NewTickPayload(rec *core.Record) TickPayload {
	control := rec.Control
	if len(control) == 0 {
		control = json.RawMessage("{}")
	}
	return TickPayload{
		Tick:       rec.Tick,
		Trip:       rec.Trip,
		ReceivedAt: rec.ReceivedAt,
		Control:    control,
		FrameBytes: len(rec.Frame),
		LidarBytes: len(rec.Lidar),
	}
}
