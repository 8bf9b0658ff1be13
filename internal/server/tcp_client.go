package server

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/lawnchairsociety/boatsim/internal/session"
)

// MaxLineLength bounds one inbound frame. Longer lines are dropped whole.
const MaxLineLength = 64 * 1024

// TCPClient wraps a raw TCP connection carrying newline-terminated frames.
type TCPClient struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	writeTimeout time.Duration
}

// NewTCPClient creates a new TCPClient from a TCP connection. A positive
// writeTimeout bounds every WriteLine.
func NewTCPClient(conn net.Conn, writeTimeout time.Duration) *TCPClient {
	return &TCPClient{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		writeTimeout: writeTimeout,
	}
}

// ReadLine reads a line from the connection (blocking).
// Returns the line without the trailing newline or carriage return.
// A line over MaxLineLength is discarded through its newline and reported
// as session.ErrLineTooLong; the next call reads the following line.
func (c *TCPClient) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			// io.EOF once the peer has closed its side
			return "", err
		}
		if len(line)+len(chunk) > MaxLineLength {
			for isPrefix {
				if _, isPrefix, err = c.reader.ReadLine(); err != nil {
					return "", err
				}
			}
			return "", session.ErrLineTooLong
		}
		line = append(line, chunk...)
		if !isPrefix {
			return strings.TrimSuffix(string(line), "\r"), nil
		}
	}
}

// WriteLine writes a frame followed by a newline to the client.
func (c *TCPClient) WriteLine(message string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.writer.WriteString(message + "\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Close closes the underlying connection.
func (c *TCPClient) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address as a string.
func (c *TCPClient) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *TCPClient) Transport() string { return "tcp" }
