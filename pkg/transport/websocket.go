// ABOUTME: Virtual channel carried over a WebSocket connection
// ABOUTME: Binary messages hold channel bytes; a reader goroutine fills the inbox
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

// WebSocketChannel adapts a gorilla connection to Channel
type WebSocketChannel struct {
	conn *websocket.Conn
	in   *inbox

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketChannel starts reading from conn. The channel owns conn.
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	c := &WebSocketChannel{
		conn: conn,
		in:   newInbox(),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// DialWebSocket connects to a server endpoint such as ws://host:port/rdpsnd
func DialWebSocket(ctx context.Context, url string) (*WebSocketChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewWebSocketChannel(conn), nil
}

func (c *WebSocketChannel) readLoop() {
	defer close(c.done)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.in.close(ErrClosed)
			} else {
				c.in.close(fmt.Errorf("%w: %v", ErrClosed, err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.in.push(data)
	}
}

func (c *WebSocketChannel) Read(p []byte) (int, error) {
	return c.in.read(p)
}

// Write sends p as a single binary message
func (c *WebSocketChannel) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("websocket write: %w", err)
	}
	return len(p), nil
}

func (c *WebSocketChannel) Ready() <-chan struct{} {
	return c.in.ready
}

// Close sends a close frame, closes the connection and waits for the reader
func (c *WebSocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		<-c.done
		c.in.close(ErrClosed)
	})
	return err
}
