package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"realtime-service/internal/registry"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// loop gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendTimeout bounds how long a broadcast waits on one connection's
	// send queue before writing that connection off as dead.
	sendTimeout = 3 * time.Second

	sendQueueSize = 64
)

// ErrClientGone is returned by Send once a client is closed or its queue
// stayed full past the send timeout.
var ErrClientGone = errors.New("client gone")

// Frame is the wire shape of every outbound push.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeFrame marshals a frame once so fan-out does not re-marshal per
// connection.
func EncodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// Client owns a single websocket connection. All writes go through the
// send queue and a single writer goroutine, per gorilla's one-writer rule.
type Client struct {
	Conn registry.Connection

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn registry.Connection, ws *websocket.Conn) *Client {
	return &Client{
		Conn:   conn,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Send queues an encoded frame, waiting at most timeout for room in the
// queue. A full queue past the timeout means the peer has stopped reading.
func (c *Client) Send(encoded []byte, timeout time.Duration) error {
	select {
	case <-c.closed:
		return ErrClientGone
	default:
	}

	select {
	case c.send <- encoded:
		return nil
	case <-c.closed:
		return ErrClientGone
	case <-time.After(timeout):
		return ErrClientGone
	}
}

// SendFrame encodes and queues a single frame with the default timeout.
func (c *Client) SendFrame(event string, data any) error {
	encoded, err := EncodeFrame(event, data)
	if err != nil {
		return err
	}
	return c.Send(encoded, sendTimeout)
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// Closed reports whether the client has been torn down.
func (c *Client) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings. Runs in its own goroutine; exits when the client
// closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case encoded := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, encoded); err != nil {
				log.Printf("websocket write error conn=%s: %v", c.Conn.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
