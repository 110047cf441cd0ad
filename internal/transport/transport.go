// Package transport isolates the socket from the engine. The connection
// manager only sees Conn and Dialer; the WebSocket implementation lives
// here.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is a bidirectional frame connection.
type Conn interface {
	// Read blocks until one frame arrives. It returns an error once the
	// connection is closed, by either side.
	Read(ctx context.Context) ([]byte, error)

	Write(ctx context.Context, data []byte) error

	Close() error
}

// Dialer opens a new Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// ErrClosed is returned by Read after a normal close.
var ErrClosed = errors.New("connection closed")

// maxFrameSize bounds a single inbound frame; bulk contact pushes can be
// large.
const maxFrameSize = 4 << 20

// WebSocketDialer dials the message server.
type WebSocketDialer struct {
	URL string

	// Header returns the handshake headers for each attempt, so that a
	// refreshed access token is picked up on reconnect. May be nil.
	Header func() http.Header

	HTTPClient *http.Client
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient}
	if d.Header != nil {
		opts.HTTPHeader = d.Header()
	}
	c, _, err := websocket.Dial(ctx, d.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	c.SetReadLimit(maxFrameSize)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
