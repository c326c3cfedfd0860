package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultHandshakeTimeout = 5 * time.Second

// ServerHint is printed when the channel cannot be reached.
const ServerHint = `livemirror server inactive. Start it with:

  livemirror run --copy-all --watch-all

It mirrors the source tree into the destination once, then watches for
changes, copies edited files when mirroring is enabled, and notifies
every connected client.
`

// ConnectOptions configures Connect.
type ConnectOptions struct {
	// Host is the page hostname; the channel is dialed on the same host.
	Host string

	// Port is the channel port.
	Port int

	// Policy gates activation. Nil means DefaultAllowedHosts.
	Policy *HostPolicy

	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer

	// Out receives the connection hint. Nil discards it.
	Out io.Writer

	Logger *slog.Logger
}

// Connect dials ws://host:port and feeds every message to router until
// ctx is cancelled or the server closes the channel. On a host outside
// the allow-list it returns ErrHostNotAllowed without dialing. Each
// message is applied on its own goroutine.
func Connect(ctx context.Context, opts ConnectOptions, router *Router) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := opts.Policy
	if policy == nil {
		policy = defaultPolicy
	}

	if !policy.Allowed(opts.Host) {
		logger.Info("live reload inactive: only available on local development hosts", slog.String("host", opts.Host))
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, opts.Host)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	}

	target := url.URL{Scheme: "ws", Host: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)), Path: "/"}

	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		if opts.Out != nil {
			fmt.Fprint(opts.Out, ServerHint)
		}

		return fmt.Errorf("connecting to %s: %w", target.String(), err)
	}

	logger.Info("connection established", slog.String("url", target.String()))

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			_ = conn.Close()

			logger.Info("connection closed", slog.String("url", target.String()))

			if ctx.Err() != nil || websocket.IsCloseError(readErr,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			if errors.Is(readErr, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("reading from %s: %w", target.String(), readErr)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			_ = router.HandleMessage(ctx, data)
		}()
	}
}
