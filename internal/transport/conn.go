package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open message-oriented connection.
type Conn interface {
	// ReadMessage blocks until the next text or binary frame arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens connections to the backend.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Interceptor observes raw frames in both directions. Interceptors must not
// retain or modify the slices they receive.
type Interceptor interface {
	Inbound(raw []byte)
	Outbound(raw []byte)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
