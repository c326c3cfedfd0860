package hub

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned when sending on a channel that is no
// longer open.
var ErrChannelClosed = errors.New("channel closed")

// Channel is one connected client.
type Channel interface {
	// Send writes one text message.
	Send(data []byte) error

	// IsOpen reports whether the transport is in the open state.
	IsOpen() bool

	// Close shuts the transport down. It is safe to call more than once.
	Close() error
}

const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// wsChannel adapts a websocket connection to Channel. Writes are
// serialized since a websocket connection supports one writer at a time.
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	state        atomic.Int32
}

func newWSChannel(conn *websocket.Conn, writeTimeout time.Duration) *wsChannel {
	return &wsChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsChannel) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}

	return nil
}

func (c *wsChannel) IsOpen() bool {
	return c.state.Load() == stateOpen
}

func (c *wsChannel) Close() error {
	var err error

	c.closeOnce.Do(func() {
		defer c.state.Store(stateClosed)

		if c.state.Swap(stateClosing) == stateOpen {
			c.writeMu.Lock()
			deadline := time.Now().Add(c.writeTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
			c.writeMu.Unlock()
		}

		if closeErr := c.conn.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = closeErr
		}
	})

	return err
}

// markClosing records that the peer went away, so Close skips the close
// handshake.
func (c *wsChannel) markClosing() {
	c.state.CompareAndSwap(stateOpen, stateClosing)
}

func (c *wsChannel) remoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
