package client

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is one established duplex text-frame connection to the gate.
// Frames are opaque UTF-8 strings with no additional framing.
type Conn interface {
	// ReadFrame blocks until the next inbound frame or a transport error.
	ReadFrame() (string, error)
	// WriteFrame sends one outbound frame.
	WriteFrame(frame string) error
	Close() error
}

// Dialer opens a Conn to the configured endpoint. The websocket dialer is
// the production implementation; tests substitute a scripted one.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadFrame() (string, error) {
	_, raw, err := w.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (w *wsConn) WriteFrame(frame string) error {
	return w.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
