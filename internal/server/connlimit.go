package server

import (
	"errors"
	"net"
	"sync"

	"github.com/lawnchairsociety/boatsim/internal/config"
)

// Reasons a connection slot is refused.
var (
	ErrTooManyForIP = errors.New("too many connections from this address")
	ErrServerFull   = errors.New("too many connections")
)

// ConnLimiter tracks and limits concurrent sessions per IP and in total.
type ConnLimiter struct {
	mu         sync.Mutex
	ipCounts   map[string]int
	totalCount int
	maxPerIP   int
	maxTotal   int
}

// ConnStats is a snapshot of the limiter.
type ConnStats struct {
	Total     int
	UniqueIPs int
}

// NewConnLimiter creates a new connection limiter with the given config.
// Zero limits are unlimited.
func NewConnLimiter(cfg config.ConnectionsConfig) *ConnLimiter {
	return &ConnLimiter{
		ipCounts: make(map[string]int),
		maxPerIP: cfg.MaxPerIP,
		maxTotal: cfg.MaxTotal,
	}
}

// Acquire takes a slot for ip, or reports which limit refused it.
func (c *ConnLimiter) Acquire(ip string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxTotal > 0 && c.totalCount >= c.maxTotal {
		return ErrServerFull
	}
	if c.maxPerIP > 0 && c.ipCounts[ip] >= c.maxPerIP {
		return ErrTooManyForIP
	}

	c.ipCounts[ip]++
	c.totalCount++
	return nil
}

// Release gives back a slot taken by Acquire.
func (c *ConnLimiter) Release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A release without a matching Acquire must not free someone else's slot
	if c.ipCounts[ip] == 0 {
		return
	}
	c.ipCounts[ip]--
	if c.ipCounts[ip] == 0 {
		delete(c.ipCounts, ip)
	}
	c.totalCount--
}

func (c *ConnLimiter) Stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnStats{Total: c.totalCount, UniqueIPs: len(c.ipCounts)}
}

// IPCount returns the number of slots ip holds.
func (c *ConnLimiter) IPCount(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ipCounts[ip]
}

// extractIP extracts the IP address from a remote address string (ip:port format).
func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr // Return as-is if can't split
	}
	return host
}
