package server

import "github.com/lawnchairsociety/boatsim/internal/session"

// Client abstracts the connection layer for both TCP and WebSocket connections,
// so a session runs the same way over either.
type Client interface {
	session.Conn

	// Transport names the listener the client arrived on, for logging.
	Transport() string
}
