package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Serve modes for the TCP listener.
const (
	ServeConcurrent = "concurrent"
	ServeSequential = "sequential"
)

// ServerConfig holds the simulator configuration.
type ServerConfig struct {
	Server      ListenConfig      `yaml:"server"`
	Boat        BoatConfig        `yaml:"boat"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Connections ConnectionsConfig `yaml:"connections"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
}

// ListenConfig controls the listeners and how accepted connections are served.
type ListenConfig struct {
	// Port is the TCP port for the line protocol.
	Port int `yaml:"port" env:"BOATSIM_PORT"`

	// WebSocketPort serves the same protocol over WebSocket at /ws. 0 disables it.
	WebSocketPort int `yaml:"websocket_port" env:"BOATSIM_WS_PORT"`

	// ServeMode is "concurrent" (one goroutine per connection) or
	// "sequential" (one client at a time, like the original test server).
	ServeMode string `yaml:"serve_mode" env:"BOATSIM_SERVE_MODE"`

	// WriteTimeout bounds a single frame write. A timed out write ends the session.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"BOATSIM_WRITE_TIMEOUT"`
}

// BoatConfig holds the initial state of every simulated boat.
type BoatConfig struct {
	Name    string `yaml:"name" env:"BOATSIM_BOAT_NAME"`
	Captain string `yaml:"captain" env:"BOATSIM_BOAT_CAPTAIN"`
	Mission string `yaml:"mission" env:"BOATSIM_BOAT_MISSION"`

	Latitude  float64 `yaml:"latitude" env:"BOATSIM_BOAT_LATITUDE"`
	Longitude float64 `yaml:"longitude" env:"BOATSIM_BOAT_LONGITUDE"`
	Magnetic  float64 `yaml:"magnetic" env:"BOATSIM_BOAT_MAGNETIC"`
	Depth     float64 `yaml:"depth" env:"BOATSIM_BOAT_DEPTH"`

	// Battery is the starting charge in percent.
	Battery int `yaml:"battery" env:"BOATSIM_BOAT_BATTERY"`

	// LowBatteryThreshold is the charge at or below which LOW_BATTERY is sent once.
	LowBatteryThreshold int `yaml:"low_battery_threshold" env:"BOATSIM_BOAT_LOW_BATTERY"`

	// Seed fixes the random source of every session. 0 picks a fresh seed per session.
	Seed int64 `yaml:"seed" env:"BOATSIM_BOAT_SEED"`

	Motion MotionConfig `yaml:"motion"`
}

// MotionConfig holds the bounds and step sizes of the simulated motion and sensors.
type MotionConfig struct {
	MinLatitude  float64 `yaml:"min_latitude"`
	MaxLatitude  float64 `yaml:"max_latitude"`
	MinLongitude float64 `yaml:"min_longitude"`
	MaxLongitude float64 `yaml:"max_longitude"`

	// StepDegrees is the largest per-report displacement at a speed of SpeedDivisor.
	StepDegrees  float64 `yaml:"step_degrees"`
	SpeedDivisor float64 `yaml:"speed_divisor"`

	// DriftDegrees is the largest per-report displacement while stationary.
	DriftDegrees float64 `yaml:"drift_degrees"`

	MinMagnetic  float64 `yaml:"min_magnetic"`
	MaxMagnetic  float64 `yaml:"max_magnetic"`
	MagneticStep float64 `yaml:"magnetic_step"`

	MinDepth  float64 `yaml:"min_depth"`
	MaxDepth  float64 `yaml:"max_depth"`
	DepthStep float64 `yaml:"depth_step"`
}

// TelemetryConfig holds the periods of the periodic messages.
type TelemetryConfig struct {
	PositionInterval time.Duration `yaml:"position_interval" env:"BOATSIM_POSITION_INTERVAL"`
	SensorInterval   time.Duration `yaml:"sensor_interval" env:"BOATSIM_SENSOR_INTERVAL"`
	BatteryInterval  time.Duration `yaml:"battery_interval" env:"BOATSIM_BATTERY_INTERVAL"`
}

// ConnectionsConfig holds connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent connections allowed from a single IP address.
	// 0 means unlimited.
	MaxPerIP int `yaml:"max_per_ip" env:"BOATSIM_MAX_PER_IP"`

	// MaxTotal is the maximum total concurrent connections to the server.
	// 0 means unlimited.
	MaxTotal int `yaml:"max_total" env:"BOATSIM_MAX_TOTAL"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig locks out addresses that reconnect too quickly.
type RateLimitConfig struct {
	// MaxAttempts is the number of connections one IP may open per Window.
	// 0 disables rate limiting.
	MaxAttempts int           `yaml:"max_attempts" env:"BOATSIM_RATE_MAX_ATTEMPTS"`
	Window      time.Duration `yaml:"window"`

	// Lockout doubles on each repeated lockout, up to MaxLockout.
	Lockout    time.Duration `yaml:"lockout"`
	MaxLockout time.Duration `yaml:"max_lockout"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy. "*" allows all origins.
	AllowedOrigins []string `yaml:"allowed_origins" env:"BOATSIM_WS_ALLOWED_ORIGINS" envSeparator:","`

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns the configuration of the reference test server:
// a boat in Poznań draining 1% per second, position every second and
// sensors every two seconds.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Server: ListenConfig{
			Port:          9000,
			WebSocketPort: 0,
			ServeMode:     ServeConcurrent,
			WriteTimeout:  5 * time.Second,
		},
		Boat: BoatConfig{
			Name:                "TestBoat",
			Captain:             "TestCaptain",
			Mission:             "TestMission",
			Latitude:            52.404633,
			Longitude:           16.957722,
			Magnetic:            45.0,
			Depth:               2.0,
			Battery:             100,
			LowBatteryThreshold: 15,
			Motion: MotionConfig{
				MinLatitude:  52.0,
				MaxLatitude:  53.0,
				MinLongitude: 16.0,
				MaxLongitude: 18.0,
				StepDegrees:  0.0001,
				SpeedDivisor: 10,
				DriftDegrees: 0.00001,
				MinMagnetic:  30.0,
				MaxMagnetic:  80.0,
				MagneticStep: 0.5,
				MinDepth:     0.5,
				MaxDepth:     10.0,
				DepthStep:    0.1,
			},
		},
		Telemetry: TelemetryConfig{
			PositionInterval: time.Second,
			SensorInterval:   2 * time.Second,
			BatteryInterval:  time.Second,
		},
		Connections: ConnectionsConfig{
			MaxPerIP: 0,
			MaxTotal: 100,
			RateLimit: RateLimitConfig{
				MaxAttempts: 0,
				Window:      time.Minute,
				Lockout:     30 * time.Second,
				MaxLockout:  5 * time.Minute,
			},
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{}, // Same-origin only by default
			MaxMessageSize: 4096,
		},
	}
}

// LoadConfig loads configuration from a YAML file and applies BOATSIM_*
// environment overrides. A missing file yields the defaults.
func LoadConfig(path string) (*ServerConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return config, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate reports settings the simulator cannot run with.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.WebSocketPort < 0 || c.Server.WebSocketPort > 65535 {
		errs = append(errs, fmt.Errorf("server.websocket_port %d out of range", c.Server.WebSocketPort))
	}
	switch c.Server.ServeMode {
	case ServeConcurrent, ServeSequential:
	default:
		errs = append(errs, fmt.Errorf("server.serve_mode %q must be %q or %q", c.Server.ServeMode, ServeConcurrent, ServeSequential))
	}

	if c.Telemetry.PositionInterval <= 0 {
		errs = append(errs, errors.New("telemetry.position_interval must be positive"))
	}
	if c.Telemetry.SensorInterval <= 0 {
		errs = append(errs, errors.New("telemetry.sensor_interval must be positive"))
	}
	if c.Telemetry.BatteryInterval <= 0 {
		errs = append(errs, errors.New("telemetry.battery_interval must be positive"))
	}

	if c.Boat.Battery < 0 || c.Boat.Battery > 100 {
		errs = append(errs, fmt.Errorf("boat.battery %d must be within [0, 100]", c.Boat.Battery))
	}
	for _, f := range []struct{ name, value string }{
		{"name", c.Boat.Name},
		{"captain", c.Boat.Captain},
		{"mission", c.Boat.Mission},
	} {
		if strings.Contains(f.value, ":") {
			errs = append(errs, fmt.Errorf("boat.%s %q must not contain ':'", f.name, f.value))
		}
	}

	if c.Connections.MaxPerIP < 0 || c.Connections.MaxTotal < 0 {
		errs = append(errs, errors.New("connections: limits must not be negative"))
	}
	if rl := c.Connections.RateLimit; rl.MaxAttempts > 0 && (rl.Window <= 0 || rl.Lockout <= 0 || rl.MaxLockout < rl.Lockout) {
		errs = append(errs, errors.New("connections.rate_limit: window and lockout must be positive and max_lockout >= lockout"))
	}

	m := c.Boat.Motion
	if m.MinLatitude > m.MaxLatitude || m.MinLongitude > m.MaxLongitude {
		errs = append(errs, errors.New("boat.motion: inverted position bounds"))
	}
	if m.MinMagnetic > m.MaxMagnetic || m.MinDepth > m.MaxDepth {
		errs = append(errs, errors.New("boat.motion: inverted sensor bounds"))
	}
	if m.SpeedDivisor <= 0 {
		errs = append(errs, errors.New("boat.motion.speed_divisor must be positive"))
	}

	return errors.Join(errs...)
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	// Extract host from origin URL (e.g., "http://localhost:3000" -> "localhost:3000")
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
