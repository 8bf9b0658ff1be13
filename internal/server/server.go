package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/boatsim/internal/config"
	"github.com/lawnchairsociety/boatsim/internal/logger"
	"github.com/lawnchairsociety/boatsim/internal/protocol"
	"github.com/lawnchairsociety/boatsim/internal/session"
)

// Server accepts controller connections and runs one session per connection.
type Server struct {
	listener     net.Listener
	wsServer     *http.Server
	sessions     map[string]*session.Session
	mu           sync.RWMutex
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	StartTime    time.Time
	serverConfig *config.ServerConfig
	connLimiter  *ConnLimiter
	rateLimiter  *ConnectRateLimiter
}

// NewServer creates a server for cfg. Nothing is bound until Listen or Start.
func NewServer(cfg *config.ServerConfig) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		sessions:     make(map[string]*session.Session),
		shutdown:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		StartTime:    time.Now(),
		serverConfig: cfg,
		connLimiter:  NewConnLimiter(cfg.Connections),
		rateLimiter:  NewConnectRateLimiter(cfg.Connections.RateLimit),
	}
}

// GetServerConfig returns the server configuration.
func (s *Server) GetServerConfig() *config.ServerConfig {
	return s.serverConfig
}

// Listen binds the TCP listener on address, e.g. ":9000" for all interfaces.
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	logger.Info("Server listening", "address", listener.Addr().String(), "serve_mode", s.serverConfig.Server.ServeMode)
	return nil
}

// Addr returns the bound TCP address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the configured port on all interfaces and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(fmt.Sprintf(":%d", s.serverConfig.Server.Port)); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Shutdown. In sequential mode each
// connection is served to completion before the next one is accepted.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	sequential := s.serverConfig.Server.ServeMode == config.ServeSequential

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if we're shutting down
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("Error accepting connection", "error", err)
			continue
		}

		if !s.track() {
			conn.Close()
			return nil
		}
		if sequential {
			s.handleConnection(conn)
		} else {
			go s.handleConnection(conn)
		}
	}
}

// track registers a connection handler with the shutdown wait group. It
// returns false once Shutdown has started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		return false
	default:
		s.wg.Add(1)
		return true
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	remoteAddr := conn.RemoteAddr().String()
	ip := extractIP(remoteAddr)
	client := NewTCPClient(conn, s.serverConfig.Server.WriteTimeout)

	if err := s.admit(ip); err != nil {
		logger.Warning("Connection rejected", "remote_addr", remoteAddr, "ip", ip, "reason", err)
		client.WriteLine(protocol.FormatWarning(protocol.WarnServerBusy))
		client.Close()
		return
	}
	defer s.connLimiter.Release(ip)

	s.runSession(client)
}

// admit applies the rate and connection limits to a new connection from ip.
// A nil return holds a connection slot that the caller must release.
func (s *Server) admit(ip string) error {
	if ok, wait := s.rateLimiter.Allow(ip); !ok {
		return fmt.Errorf("rate limited for %v", wait.Round(time.Second))
	}
	return s.connLimiter.Acquire(ip)
}

// runSession is the shared session handling for both TCP and WebSocket clients.
func (s *Server) runSession(client Client) {
	cfg := s.serverConfig
	sess, err := session.New(client, cfg.Boat, cfg.Telemetry)
	if err != nil {
		logger.Error("Failed to create session", "remote_addr", client.RemoteAddr(), "error", err)
		client.Close()
		return
	}

	// Shutdown may have started between accept and here
	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		client.Close()
		return
	default:
	}
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	logger.Info("Client connected", "session", sess.ID(), "remote_addr", client.RemoteAddr(), "transport", client.Transport())

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
		logger.Info("Client disconnected", "session", sess.ID(), "reason", sess.Reason())
	}()

	if err := sess.Run(s.ctx); err != nil {
		logger.Warning("Session failed", "session", sess.ID(), "error", err)
	}
}

// WebSocketHandler returns the HTTP handler serving the protocol at /ws.
func (s *Server) WebSocketHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocketUpgrade)
	return mux
}

// StartWebSocket starts the WebSocket server on the given address and
// blocks until Shutdown.
func (s *Server) StartWebSocket(address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           s.WebSocketHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.wsServer = srv
	s.mu.Unlock()

	logger.Info("WebSocket server listening", "address", address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWebSocketUpgrade upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	// Get the real client IP (supports X-Forwarded-For from reverse proxies)
	clientIP := getRealIP(r)

	if err := s.admit(clientIP); err != nil {
		logger.Warning("WebSocket connection rejected",
			"remote_addr", r.RemoteAddr,
			"client_ip", clientIP,
			"reason", err)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}

	cfg := s.GetServerConfig()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err)
		// Release the connection slot since upgrade failed
		s.connLimiter.Release(clientIP)
		return
	}
	if cfg.WebSocket.MaxMessageSize > 0 {
		wsConn.SetReadLimit(cfg.WebSocket.MaxMessageSize)
	}

	if !s.track() {
		s.connLimiter.Release(clientIP)
		wsConn.Close()
		return
	}
	go s.handleWebSocketConnection(wsConn, clientIP)
}

// handleWebSocketConnection handles a WebSocket client connection.
func (s *Server) handleWebSocketConnection(wsConn *websocket.Conn, clientIP string) {
	defer func() {
		s.connLimiter.Release(clientIP)
		wsConn.Close()
		s.wg.Done()
	}()

	client := NewWebSocketClient(wsConn, s.serverConfig.Server.WriteTimeout)
	s.runSession(client)
}

// getRealIP extracts the real client IP from an HTTP request.
// It checks X-Forwarded-For header first (for reverse proxy setups),
// then falls back to the direct remote address.
func getRealIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if clientIP := strings.TrimSpace(strings.Split(xff, ",")[0]); clientIP != "" {
			return clientIP
		}
	}

	// Check X-Real-IP header (alternative header used by some proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return extractIP(r.RemoteAddr)
}

// SessionCount returns the number of running sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// GetUptime returns how long the server has been running.
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.StartTime)
}

// Shutdown stops accepting, closes every session and waits for their
// handlers to return. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		close(s.shutdown)
		wsServer := s.wsServer
		sessions := make([]*session.Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()

		if s.listener != nil {
			s.listener.Close()
		}
		if wsServer != nil {
			wsServer.Close()
		}

		s.cancel()
		for _, sess := range sessions {
			sess.Close()
		}
		s.rateLimiter.Stop()

		s.wg.Wait()
		logger.Info("Server shutdown complete", "sessions_closed", len(sessions))
	})
}
