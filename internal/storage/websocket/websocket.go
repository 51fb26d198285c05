package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/deepgtav/vpilot-collector/internal/config"
	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/streaming"
)

// Backend forwards tick telemetry over WebSocket to a live dashboard.
// Binary payloads stay local; only their sizes are sent.
type Backend struct {
	feed *feed
	cfg  config.WebSocketConfig
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		feed: newFeed(cfg.URL, cfg.Secret, logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	if b.cfg.URL == "" {
		return fmt.Errorf("websocket backend requires websocket.url")
	}
	return b.feed.open()
}

// Close flushes queued messages and disconnects.
func (b *Backend) Close() error {
	return b.feed.close()
}

// Pending returns the number of messages waiting to be written.
func (b *Backend) Pending() int {
	return b.feed.pending()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartSession announces the session and waits for the server's ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.NewStartSessionPayload(s))
	if err != nil {
		return err
	}
	b.feed.setAnnouncement(announceSession, data)
	return b.feed.request(data, streaming.TypeStartSession, ackTimeout)
}

// StartTrip announces a trip and waits for the server's ack.
func (b *Backend) StartTrip(t *core.Trip) error {
	data, err := marshalEnvelope(streaming.TypeStartTrip, streaming.NewTripPayload(t))
	if err != nil {
		return err
	}
	b.feed.setAnnouncement(announceTrip, data)
	return b.feed.request(data, streaming.TypeStartTrip, ackTimeout)
}

// EndTrip sends end_trip without waiting.
func (b *Backend) EndTrip() error {
	data, err := marshalEnvelope(streaming.TypeEndTrip, nil)
	if err != nil {
		return err
	}
	b.feed.setAnnouncement(announceTrip, nil)
	b.feed.enqueue(data)
	return nil
}

// Append forwards one tick. When the server is unreachable for long the
// oldest queued ticks are dropped.
func (b *Backend) Append(rec *core.Record) error {
	data, err := marshalEnvelope(streaming.TypeTick, streaming.NewTickPayload(rec))
	if err != nil {
		return err
	}
	b.feed.enqueue(data)
	return nil
}
