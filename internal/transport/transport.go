// Package transport talks to the simulator over TCP. Every message in both
// directions is a 4-byte little-endian length followed by the payload.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/messages"
)

// MaxPayload bounds a single inbound payload.
const MaxPayload = 64 << 20

// Message is one tick as received: the control JSON followed by the binary
// payloads the dataset enabled.
type Message struct {
	Control json.RawMessage
	Frame   []byte
	Lidar   []byte
}

// Conn is a framed connection to the simulator.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	wmu    sync.Mutex
	closed bool
}

// Dial connects to the simulator at host:port.
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	var d net.Dialer
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(conn), nil
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, r: bufio.NewReaderSize(conn, 1<<16)}
}

// Send writes m as one framed JSON payload.
func (c *Conn) Send(m messages.Message) error {
	payload, err := messages.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return core.ErrTransportClosed
	}
	if err := WriteFrame(c.conn, payload); err != nil {
		return fmt.Errorf("send %s: %w", m.Kind(), closedErr(err))
	}
	return nil
}

// Receive blocks for the next tick. frame and lidar say which binary
// payloads follow the control message.
func (c *Conn) Receive(frame, lidar bool) (*Message, error) {
	control, err := ReadFrame(c.r)
	if err != nil {
		return nil, fmt.Errorf("receive control: %w", closedErr(err))
	}
	msg := &Message{Control: control}
	if frame {
		if msg.Frame, err = ReadFrame(c.r); err != nil {
			return nil, fmt.Errorf("receive frame: %w", closedErr(err))
		}
	}
	if lidar {
		if msg.Lidar, err = ReadFrame(c.r); err != nil {
			return nil, fmt.Errorf("receive lidar: %w", closedErr(err))
		}
	}
	return msg, nil
}

// RemoteAddr returns the simulator address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// WriteFrame writes the length prefix and payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds limit of %d", n, MaxPayload)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// closedErr maps a dropped connection onto core.ErrTransportClosed.
func closedErr(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %w", core.ErrTransportClosed, err)
	}
	return err
}
