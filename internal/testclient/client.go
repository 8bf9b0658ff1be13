package testclient

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lawnchairsociety/boatsim/internal/protocol"
)

// TestClient is a controller connection to the simulator that records every
// frame it receives.
type TestClient struct {
	Name     string
	conn     net.Conn
	reader   *bufio.Reader
	writer   *bufio.Writer
	messages []string
	cursor   int // index of the first frame NextEvent has not returned yet
	mu       sync.Mutex
	wmu      sync.Mutex
	done     chan struct{}
	eof      chan struct{}
	once     sync.Once
}

// Dial connects to the simulator and starts recording frames. The BI
// greeting arrives on its own; use WaitForPrefix to wait for it.
func Dial(name string, address string) (*TestClient, error) {
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	client := &TestClient{
		Name:     name,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		writer:   bufio.NewWriter(conn),
		messages: make([]string, 0),
		done:     make(chan struct{}),
		eof:      make(chan struct{}),
	}

	go client.readMessages()

	return client, nil
}

// DialGreeted connects and waits for the BI greeting.
func DialGreeted(name string, address string, timeout time.Duration) (*TestClient, error) {
	client, err := Dial(name, address)
	if err != nil {
		return nil, err
	}
	if _, ok := client.WaitForPrefix(protocol.TagBoatInfo+":", timeout); !ok {
		messages := client.GetMessages()
		client.Close()
		return nil, fmt.Errorf("no greeting within %v, messages: %v", timeout, messages)
	}
	return client, nil
}

// readMessages continuously reads frames from the simulator
func (c *TestClient) readMessages() {
	defer close(c.eof)
	for {
		select {
		case <-c.done:
			return
		default:
			line, err := c.reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if line != "" {
				c.mu.Lock()
				c.messages = append(c.messages, line)
				c.mu.Unlock()
			}
		}
	}
}

// SendCommand sends one raw line to the simulator
func (c *TestClient) SendCommand(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, err := c.writer.WriteString(line + "\n")
	if err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *TestClient) GetInfo() error {
	return c.SendCommand(protocol.FormatGetInfo())
}

func (c *TestClient) SetSpeed(left, right float64, seq int) error {
	return c.SendCommand(protocol.FormatSetSpeed(left, right, seq))
}

func (c *TestClient) SetMission(mission string, seq int) error {
	return c.SendCommand(protocol.FormatSetMission(mission, seq))
}

func (c *TestClient) SetAction(action, payload string, seq int) error {
	return c.SendCommand(protocol.FormatSetAction(action, payload, seq))
}

func (c *TestClient) LostInformation(seq int) error {
	return c.SendCommand(protocol.FormatLostInformation(seq))
}

// GetMessages returns all frames received so far
func (c *TestClient) GetMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, len(c.messages))
	copy(result, c.messages)
	return result
}

// GetLastMessages returns the last N frames
func (c *TestClient) GetLastMessages(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > len(c.messages) {
		n = len(c.messages)
	}

	start := len(c.messages) - n
	result := make([]string, n)
	copy(result, c.messages[start:])
	return result
}

// ClearMessages clears the frame buffer
func (c *TestClient) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]string, 0)
	c.cursor = 0
}

// WaitForMessage waits for a frame containing the specified text (with timeout)
func (c *TestClient) WaitForMessage(text string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if c.HasMessage(text) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}

	return false
}

// WaitForPrefix waits for a frame starting with prefix and returns it.
func (c *TestClient) WaitForPrefix(prefix string, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		for _, msg := range c.GetMessages() {
			if strings.HasPrefix(msg, prefix) {
				return msg, true
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	return "", false
}

// NextEvent returns the next not yet consumed frame with the given tag,
// parsed. Frames with other tags are skipped and stay available to
// GetMessages.
func (c *TestClient) NextEvent(tag string, timeout time.Duration) (protocol.Event, error) {
	deadline := time.Now().Add(timeout)

	for {
		c.mu.Lock()
		for c.cursor < len(c.messages) {
			msg := c.messages[c.cursor]
			c.cursor++
			if !strings.HasPrefix(msg, tag+":") {
				continue
			}
			c.mu.Unlock()
			return protocol.ParseEvent(msg)
		}
		c.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("no %s frame within %v", tag, timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// CountPrefix returns how many frames received so far start with prefix.
func (c *TestClient) CountPrefix(prefix string) int {
	n := 0
	for _, msg := range c.GetMessages() {
		if strings.HasPrefix(msg, prefix) {
			n++
		}
	}
	return n
}

// WaitForClose waits until the simulator closes the connection.
func (c *TestClient) WaitForClose(timeout time.Duration) bool {
	select {
	case <-c.eof:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close closes the client connection. It is safe to call more than once.
func (c *TestClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// GetLastMessage returns the most recent frame
func (c *TestClient) GetLastMessage() string {
	messages := c.GetLastMessages(1)
	if len(messages) > 0 {
		return messages[0]
	}
	return ""
}

// PrintMessages prints all frames (for debugging)
func (c *TestClient) PrintMessages() {
	messages := c.GetMessages()
	fmt.Printf("\n=== Frames for %s ===\n", c.Name)
	for i, msg := range messages {
		fmt.Printf("[%d] %s\n", i, msg)
	}
	fmt.Println("======================")
}

// HasMessage checks if any frame contains the specified text
func (c *TestClient) HasMessage(text string) bool {
	messages := c.GetMessages()
	for _, msg := range messages {
		if strings.Contains(msg, text) {
			return true
		}
	}
	return false
}
