package server

import (
	"sync"
	"time"

	"github.com/lawnchairsociety/boatsim/internal/config"
)

// ConnectRateLimiter locks out IPs that open connections faster than
// MaxAttempts per Window.
type ConnectRateLimiter struct {
	mu              sync.Mutex
	attempts        map[string]*attemptInfo
	maxAttempts     int
	window          time.Duration
	lockout         time.Duration
	maxLockout      time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

type attemptInfo struct {
	windowStart  time.Time
	count        int
	lockedUntil  time.Time
	lockoutCount int // Number of times locked out (for exponential backoff)
}

// NewConnectRateLimiter creates a limiter from cfg. It returns nil when
// cfg.MaxAttempts is 0; a nil limiter allows everything.
func NewConnectRateLimiter(cfg config.RateLimitConfig) *ConnectRateLimiter {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	rl := &ConnectRateLimiter{
		attempts:        make(map[string]*attemptInfo),
		maxAttempts:     cfg.MaxAttempts,
		window:          cfg.Window,
		lockout:         cfg.Lockout,
		maxLockout:      cfg.MaxLockout,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	// Use sensible defaults if not configured
	if rl.window <= 0 {
		rl.window = time.Minute
	}
	if rl.lockout <= 0 {
		rl.lockout = 30 * time.Second
	}
	if rl.maxLockout < rl.lockout {
		rl.maxLockout = rl.lockout
	}

	go rl.cleanupLoop()

	return rl
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *ConnectRateLimiter) Stop() {
	if rl == nil {
		return
	}
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Allow records a connection attempt from ip. It returns false, with the
// remaining lockout, when the attempt must be refused.
func (rl *ConnectRateLimiter) Allow(ip string) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	info, exists := rl.attempts[ip]
	if !exists {
		info = &attemptInfo{windowStart: now}
		rl.attempts[ip] = info
	}

	// Attempts while locked do not extend the lockout
	if now.Before(info.lockedUntil) {
		return false, info.lockedUntil.Sub(now)
	}

	if now.Sub(info.windowStart) >= rl.window {
		info.windowStart = now
		info.count = 0
	}
	info.count++

	if info.count > rl.maxAttempts {
		info.lockoutCount++
		// Exponential backoff: double the lockout each time, up to max
		lockoutDuration := rl.lockout
		for i := 1; i < info.lockoutCount; i++ {
			// Check before multiplication to prevent overflow
			if lockoutDuration >= rl.maxLockout/2 {
				lockoutDuration = rl.maxLockout
				break
			}
			lockoutDuration *= 2
		}
		if lockoutDuration > rl.maxLockout {
			lockoutDuration = rl.maxLockout
		}
		info.lockedUntil = now.Add(lockoutDuration)
		info.windowStart = info.lockedUntil
		info.count = 0
		return false, lockoutDuration
	}

	return true, 0
}

// IsLocked checks if the given IP is currently locked out.
// Returns true if locked, along with the remaining lockout duration.
func (rl *ConnectRateLimiter) IsLocked(ip string) (bool, time.Duration) {
	if rl == nil {
		return false, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	info, exists := rl.attempts[ip]
	if !exists {
		return false, 0
	}

	now := rl.now()
	if now.Before(info.lockedUntil) {
		return true, info.lockedUntil.Sub(now)
	}

	return false, 0
}

// cleanupLoop periodically removes expired entries.
func (rl *ConnectRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops IPs that are not locked and whose window has run out.
// Their backoff history is forgotten with them.
func (rl *ConnectRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.maxLockout)

	for ip, info := range rl.attempts {
		if now.After(info.lockedUntil) && info.windowStart.Add(rl.window).Before(cutoff) {
			delete(rl.attempts, ip)
		}
	}
}
