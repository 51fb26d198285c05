package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/deepgtav/vpilot-collector/internal/queue"
	"github.com/deepgtav/vpilot-collector/pkg/streaming"
)

const (
	maxBacklog   = 10_000
	flushBatch   = 64
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

var errConnLost = errors.New("websocket connection lost")

const (
	announceSession = iota
	announceTrip
)

// feed is the outbound side of the live feed. Messages are queued in order
// and written by one pump goroutine, which also redials after the server
// goes away. While disconnected the backlog keeps the newest maxBacklog
// messages.
type feed struct {
	url    string
	secret string
	logger *slog.Logger

	backlog    *queue.Queue[[]byte]
	maxBacklog int
	retryWait  time.Duration
	wake       chan struct{}
	acks       chan streaming.AckMessage
	done       chan struct{}
	wg         sync.WaitGroup

	mu       sync.Mutex
	announce [2][]byte // replayed after a reconnect
	dropped  uint64
	closed   bool

	// owned by the pump
	unsent [][]byte
}

func newFeed(rawURL, secret string, logger *slog.Logger) *feed {
	return &feed{
		url:        rawURL,
		secret:     secret,
		logger:     logger,
		backlog:    queue.New[[]byte](),
		maxBacklog: maxBacklog,
		retryWait:  time.Second,
		wake:       make(chan struct{}, 1),
		acks:       make(chan streaming.AckMessage, ackChSize),
		done:       make(chan struct{}),
	}
}

// open dials once and starts the pump. A first dial failure is returned
// to the caller; later failures are retried in the background.
func (f *feed) open() error {
	conn, err := f.dial()
	if err != nil {
		return err
	}
	f.wg.Add(1)
	go f.pump(conn)
	return nil
}

func (f *feed) dial() (*ws.Conn, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", f.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (f *feed) pump(conn *ws.Conn) {
	defer f.wg.Done()
	for {
		lost := make(chan struct{})
		f.wg.Add(1)
		go f.readAcks(conn, lost)

		err := f.serve(conn, lost)
		if err == nil {
			_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			_ = conn.Close()
			return
		}
		f.logger.Warn("WebSocket feed interrupted", "error", err, "backlog", f.pending())
		_ = conn.Close()

		if conn = f.redial(); conn == nil {
			return
		}
	}
}

// serve writes queued messages until the feed is closed (nil) or the
// connection breaks.
func (f *feed) serve(conn *ws.Conn, lost <-chan struct{}) error {
	for {
		select {
		case <-f.done:
			if err := f.flush(conn); err != nil {
				f.logger.Warn("WebSocket feed closed with unsent messages", "error", err)
			}
			return nil
		case <-lost:
			return errConnLost
		case <-f.wake:
			if err := f.flush(conn); err != nil {
				return err
			}
		}
	}
}

// flush writes everything queued so far. Messages not written when an
// error occurs are kept for the next connection.
func (f *feed) flush(conn *ws.Conn) error {
	for {
		batch := f.unsent
		f.unsent = nil
		if len(batch) == 0 {
			batch = f.backlog.Drain(flushBatch)
		}
		if len(batch) == 0 {
			return nil
		}
		for i, data := range batch {
			if err := write(conn, data); err != nil {
				f.unsent = batch[i:]
				return err
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readAcks routes server acks until the connection fails, then closes lost.
func (f *feed) readAcks(conn *ws.Conn, lost chan<- struct{}) {
	defer f.wg.Done()
	defer close(lost)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			f.logger.Debug("Ignoring websocket message", "raw", string(message))
			continue
		}
		select {
		case f.acks <- ack:
		default:
			f.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// redial retries with exponential backoff and replays the session and trip
// announcements on the new connection. It returns nil when the feed is
// closed or the attempts run out.
func (f *feed) redial() *ws.Conn {
	backoff := f.retryWait
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		timer := time.NewTimer(backoff)
		select {
		case <-f.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := f.dial()
		if err == nil {
			f.mu.Lock()
			replay := f.announce
			f.mu.Unlock()
			for _, data := range replay {
				if data == nil {
					continue
				}
				if err = write(conn, data); err != nil {
					_ = conn.Close()
					break
				}
			}
		}
		if err != nil {
			f.logger.Warn("WebSocket redial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		f.logger.Info("WebSocket feed reconnected", "attempt", attempt, "backlog", f.pending())
		f.notify()
		return conn
	}
	f.logger.Error("WebSocket feed gave up reconnecting", "maxAttempts", maxReconnect)
	return nil
}

// setAnnouncement records the message to replay for slot; nil clears it.
// Starting a session clears the trip.
func (f *feed) setAnnouncement(slot int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announce[slot] = data
	if slot == announceSession {
		f.announce[announceTrip] = nil
	}
}

// enqueue never blocks. When the backlog is full the oldest message is
// dropped.
func (f *feed) enqueue(data []byte) {
	if f.backlog.Len() >= f.maxBacklog {
		f.backlog.Pop()
		f.mu.Lock()
		f.dropped++
		dropped := f.dropped
		f.mu.Unlock()
		if dropped == 1 || dropped%1000 == 0 {
			f.logger.Warn("WebSocket backlog full, dropping oldest messages", "dropped", dropped)
		}
	}
	f.backlog.Push(data)
	f.notify()
}

func (f *feed) notify() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// request enqueues data and waits for the server to ack it.
func (f *feed) request(data []byte, ackFor string, timeout time.Duration) error {
	// acks from replayed announcements must not satisfy this request
	for drained := false; !drained; {
		select {
		case <-f.acks:
		default:
			drained = true
		}
	}
	f.enqueue(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-f.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-f.done:
			return fmt.Errorf("feed closed while waiting for ack of %q", ackFor)
		}
	}
}

func (f *feed) pending() int {
	return f.backlog.Len()
}

// close flushes what it can and stops the pump. Calling close more than
// once is a no-op.
func (f *feed) close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}
