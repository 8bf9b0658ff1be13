package server

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient wraps a WebSocket connection for browser-based controllers.
// Each text message may hold one or more frames.
type WebSocketClient struct {
	conn         *websocket.Conn
	readBuf      []string   // Buffer for lines when a message contains multiple lines
	mu           sync.Mutex // Protects readBuf
	writeTimeout time.Duration
}

// NewWebSocketClient creates a new WebSocketClient from a WebSocket connection.
func NewWebSocketClient(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketClient {
	return &WebSocketClient{
		conn:         conn,
		readBuf:      make([]string, 0),
		writeTimeout: writeTimeout,
	}
}

// ReadLine reads a line from the WebSocket connection (blocking).
// If a message contains multiple lines, they are buffered and returned one at a time.
// A close frame from the peer is reported as io.EOF.
func (c *WebSocketClient) ReadLine() (string, error) {
	for {
		c.mu.Lock()
		if len(c.readBuf) > 0 {
			line := c.readBuf[0]
			c.readBuf = c.readBuf[1:]
			c.mu.Unlock()
			return line, nil
		}
		c.mu.Unlock()

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return "", io.EOF
			}
			return "", err
		}

		filtered := make([]string, 0, 1)
		for _, line := range strings.Split(string(message), "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				filtered = append(filtered, trimmed)
			}
		}

		// Empty messages are skipped
		if len(filtered) == 0 {
			continue
		}

		c.mu.Lock()
		c.readBuf = append(c.readBuf, filtered[1:]...)
		c.mu.Unlock()

		return filtered[0], nil
	}
}

// WriteLine sends one frame, newline included, as a text message.
func (c *WebSocketClient) WriteLine(message string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(message+"\n"))
}

// Close closes the WebSocket connection.
func (c *WebSocketClient) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address as a string.
func (c *WebSocketClient) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WebSocketClient) Transport() string { return "websocket" }
