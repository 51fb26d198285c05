package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/messages"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"speed":1}`)))
	require.NoError(t, WriteFrame(&buf, nil))

	assert.Equal(t, []byte{11, 0, 0, 0}, buf.Bytes()[:4])

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"speed":1}`, string(got))

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFrame_TooLarge(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	assert.Error(t, err)
}

func TestReceive(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()

	frame := bytes.Repeat([]byte{7}, 1440)
	lidar := bytes.Repeat([]byte{1}, 24)
	go func() {
		_ = WriteFrame(server, []byte(`{"throttle":0.5}`))
		_ = WriteFrame(server, frame)
		_ = WriteFrame(server, lidar)
		_ = WriteFrame(server, []byte(`{"throttle":0.6}`))
		_ = WriteFrame(server, lidar)
	}()

	msg, err := c.Receive(true, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"throttle":0.5}`, string(msg.Control))
	assert.Equal(t, frame, msg.Frame)
	assert.Equal(t, lidar, msg.Lidar)

	msg, err = c.Receive(false, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"throttle":0.6}`, string(msg.Control))
	assert.Nil(t, msg.Frame)
	assert.Equal(t, lidar, msg.Lidar)
}

func TestReceive_ClosedMidRead(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()

	go func() {
		_ = WriteFrame(server, []byte(`{}`))
		// frame header promises more than is sent
		_, _ = server.Write([]byte{100, 0, 0, 0, 1, 2, 3})
		_ = server.Close()
	}()

	_, err := c.Receive(true, false)
	assert.ErrorIs(t, err, core.ErrTransportClosed)
}

func TestReceive_EOF(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	_ = server.Close()

	_, err := c.Receive(false, false)
	assert.ErrorIs(t, err, core.ErrTransportClosed)
}

func TestDialAndSend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			payload, err := ReadFrame(conn)
			if err != nil {
				close(received)
				return
			}
			received <- payload
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	c, err := Dial(context.Background(), host, port)
	require.NoError(t, err)

	require.NoError(t, c.Send(messages.Commands{Throttle: 1, Steering: -0.5}))
	require.NoError(t, c.Send(messages.Stop{}))
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(messages.Stop{}), core.ErrTransportClosed)

	var cmds map[string]map[string]float64
	require.NoError(t, json.Unmarshal(<-received, &cmds))
	assert.Equal(t, 1.0, cmds["commands"]["throttle"])
	assert.Equal(t, -0.5, cmds["commands"]["steering"])
	assert.JSONEq(t, `{"stop":null}`, string(<-received))
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), "127.0.0.1", addr.Port)
	assert.Error(t, err)
}
