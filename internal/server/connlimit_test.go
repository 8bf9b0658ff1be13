package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/lawnchairsociety/boatsim/internal/config"
)

func TestConnLimiter_PerIPLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{
		MaxPerIP: 2,
		MaxTotal: 100,
	})

	// First two connections from same IP should succeed
	if err := limiter.Acquire("192.168.1.1"); err != nil {
		t.Errorf("first connection should be allowed: %v", err)
	}
	if err := limiter.Acquire("192.168.1.1"); err != nil {
		t.Errorf("second connection should be allowed: %v", err)
	}

	// Third connection from same IP should fail
	if err := limiter.Acquire("192.168.1.1"); !errors.Is(err, ErrTooManyForIP) {
		t.Errorf("third connection from same IP should be rejected with ErrTooManyForIP, got %v", err)
	}

	// Connection from different IP should succeed
	if err := limiter.Acquire("192.168.1.2"); err != nil {
		t.Errorf("connection from different IP should be allowed: %v", err)
	}

	// Release one connection
	limiter.Release("192.168.1.1")

	// Now should be able to connect again
	if err := limiter.Acquire("192.168.1.1"); err != nil {
		t.Errorf("connection should be allowed after release: %v", err)
	}
}

func TestConnLimiter_TotalLimit(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{
		MaxPerIP: 10,
		MaxTotal: 3,
	})

	// First 3 connections should succeed
	if err := limiter.Acquire("192.168.1.1"); err != nil {
		t.Errorf("first connection should be allowed: %v", err)
	}
	if err := limiter.Acquire("192.168.1.2"); err != nil {
		t.Errorf("second connection should be allowed: %v", err)
	}
	if err := limiter.Acquire("192.168.1.3"); err != nil {
		t.Errorf("third connection should be allowed: %v", err)
	}

	// Fourth connection should fail (total limit)
	if err := limiter.Acquire("192.168.1.4"); !errors.Is(err, ErrServerFull) {
		t.Errorf("fourth connection should be rejected with ErrServerFull, got %v", err)
	}

	// Release one
	limiter.Release("192.168.1.1")

	// Now should be able to connect
	if err := limiter.Acquire("192.168.1.4"); err != nil {
		t.Errorf("connection should be allowed after release: %v", err)
	}
}

func TestConnLimiter_Unlimited(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{
		MaxPerIP: 0, // Unlimited
		MaxTotal: 0, // Unlimited
	})

	// Should allow many connections
	for i := 0; i < 100; i++ {
		if err := limiter.Acquire("192.168.1.1"); err != nil {
			t.Errorf("connection %d should be allowed when unlimited: %v", i, err)
		}
	}
}

func TestConnLimiter_Stats(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{
		MaxPerIP: 10,
		MaxTotal: 100,
	})

	limiter.Acquire("192.168.1.1")
	limiter.Acquire("192.168.1.1")
	limiter.Acquire("192.168.1.2")

	stats := limiter.Stats()
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if stats.UniqueIPs != 2 {
		t.Errorf("expected 2 unique IPs, got %d", stats.UniqueIPs)
	}

	limiter.Release("192.168.1.2")
	limiter.Release("192.168.1.2") // extra release must not go negative
	if stats := limiter.Stats(); stats.Total != 2 || stats.UniqueIPs != 1 {
		t.Errorf("after release got %+v, want {Total:2 UniqueIPs:1}", stats)
	}
}

// TestConnLimiter_UnbalancedRelease tests that releasing an IP with no slot
// cannot free capacity held by other IPs
func TestConnLimiter_UnbalancedRelease(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{MaxTotal: 2})

	if err := limiter.Acquire("10.0.0.1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := limiter.Acquire("10.0.0.2"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	limiter.Release("10.0.0.9")

	if stats := limiter.Stats(); stats.Total != 2 || stats.UniqueIPs != 2 {
		t.Errorf("after unbalanced release got %+v, want {Total:2 UniqueIPs:2}", stats)
	}
	if err := limiter.Acquire("10.0.0.3"); !errors.Is(err, ErrServerFull) {
		t.Errorf("Acquire over MaxTotal = %v, want ErrServerFull", err)
	}
}

func TestConnLimiter_IPCount(t *testing.T) {
	limiter := NewConnLimiter(config.ConnectionsConfig{
		MaxPerIP: 10,
		MaxTotal: 100,
	})

	limiter.Acquire("192.168.1.1")
	limiter.Acquire("192.168.1.1")
	limiter.Acquire("192.168.1.2")

	if count := limiter.IPCount("192.168.1.1"); count != 2 {
		t.Errorf("expected count 2 for IP 192.168.1.1, got %d", count)
	}

	if count := limiter.IPCount("192.168.1.2"); count != 1 {
		t.Errorf("expected count 1 for IP 192.168.1.2, got %d", count)
	}

	if count := limiter.IPCount("192.168.1.3"); count != 0 {
		t.Errorf("expected count 0 for unknown IP, got %d", count)
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[::1]:12345", "::1"},
		{"localhost:4000", "localhost"},
		{"192.168.1.1", "192.168.1.1"}, // No port
	}

	for _, tt := range tests {
		result := extractIP(tt.input)
		if result != tt.expected {
			t.Errorf("extractIP(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For single IP",
			xff:        "203.0.113.50",
			remoteAddr: "10.0.0.1:12345",
			expected:   "203.0.113.50",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			xff:        "203.0.113.50, 70.41.3.18, 150.172.238.178",
			remoteAddr: "10.0.0.1:12345",
			expected:   "203.0.113.50", // First IP is the client
		},
		{
			name:       "X-Real-IP",
			xri:        "203.0.113.50",
			remoteAddr: "10.0.0.1:12345",
			expected:   "203.0.113.50",
		},
		{
			name:       "X-Forwarded-For takes precedence over X-Real-IP",
			xff:        "203.0.113.50",
			xri:        "198.51.100.25",
			remoteAddr: "10.0.0.1:12345",
			expected:   "203.0.113.50",
		},
		{
			name:       "No headers - use RemoteAddr",
			remoteAddr: "192.168.1.100:54321",
			expected:   "192.168.1.100",
		},
		{
			name:       "Empty X-Forwarded-For falls back to RemoteAddr",
			xff:        "",
			remoteAddr: "192.168.1.100:54321",
			expected:   "192.168.1.100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &http.Request{
				RemoteAddr: tt.remoteAddr,
				Header:     make(http.Header),
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			result := getRealIP(req)
			if result != tt.expected {
				t.Errorf("getRealIP() = %q, want %q", result, tt.expected)
			}
		})
	}
}
