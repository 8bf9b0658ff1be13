// Package boat holds the mutable state of one simulated boat: identity,
// position, speed, sensors, battery and the position report counter.
//
// A Boat belongs to exactly one session and is not safe for concurrent use.
package boat

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/lawnchairsociety/boatsim/internal/config"
)

// Identity is what BI and BIC frames report.
type Identity struct {
	Name    string
	Captain string
	Mission string
}

// Position is a longitude/latitude pair in degrees.
type Position struct {
	Longitude float64
	Latitude  float64
}

// Sensors holds the simulated sensor readings.
type Sensors struct {
	Magnetic float64
	Depth    float64
}

// PositionReport is the content of one PA frame.
type PositionReport struct {
	Position
	Speed float64
	Seq   int
}

// BatteryStatus is the outcome of one drain tick.
type BatteryStatus struct {
	Level int
	// LowWarning is set on the single tick where LOW_BATTERY must be sent.
	LowWarning bool
	Exhausted  bool
}

// Boat is the simulated vehicle of one session.
type Boat struct {
	identity Identity
	position Position
	sensors  Sensors
	speed    float64
	winch    int

	battery      int
	lowThreshold int
	warningSent  bool
	seq          int

	motion config.MotionConfig
	rng    *rand.Rand
}

// New creates a boat in its initial state. rng must not be shared with other boats.
func New(cfg config.BoatConfig, rng *rand.Rand) *Boat {
	return &Boat{
		identity: Identity{
			Name:    cfg.Name,
			Captain: cfg.Captain,
			Mission: cfg.Mission,
		},
		position: Position{
			Longitude: cfg.Longitude,
			Latitude:  cfg.Latitude,
		},
		sensors: Sensors{
			Magnetic: cfg.Magnetic,
			Depth:    cfg.Depth,
		},
		battery:      clampInt(cfg.Battery, 0, 100),
		lowThreshold: cfg.LowBatteryThreshold,
		motion:       cfg.Motion,
		rng:          rng,
	}
}

// NewRand returns a random source for one boat. A zero seed draws a fresh one
// from crypto/rand.
func NewRand(seed int64) (*rand.Rand, error) {
	if seed == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("read random seed: %w", err)
		}
		seed = int64(binary.LittleEndian.Uint64(b[:]))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Getters report the current state without changing it.
func (b *Boat) Identity() Identity { return b.identity }
func (b *Boat) Position() Position { return b.position }
func (b *Boat) Sensors() Sensors   { return b.sensors }
func (b *Boat) Speed() float64     { return b.speed }
func (b *Boat) Winch() int         { return b.winch }
func (b *Boat) Battery() int       { return b.battery }
func (b *Boat) Seq() int           { return b.seq }

// WarningSent reports whether LOW_BATTERY has already been issued.
func (b *Boat) WarningSent() bool { return b.warningSent }

// SetSpeed applies a thrust command. The speed is the mean of both sides.
func (b *Boat) SetSpeed(left, right float64) float64 {
	b.speed = (left + right) / 2
	return b.speed
}

// SetWinch records the winch state sent alongside thrust by the controller app.
func (b *Boat) SetWinch(state int) {
	b.winch = state
}

// SetMission replaces the mission. Name and captain never change.
func (b *Boat) SetMission(mission string) Identity {
	b.identity.Mission = mission
	return b.identity
}

// NextPosition moves the boat one step and numbers the report. Every call
// consumes one sequence number, starting at 1.
func (b *Boat) NextPosition() PositionReport {
	m := b.motion
	if b.speed > 0 {
		scale := m.StepDegrees * b.speed / m.SpeedDivisor
		b.position.Latitude += b.uniform(scale)
		b.position.Longitude += b.uniform(scale)
	} else {
		b.position.Latitude += b.uniform(m.DriftDegrees)
		b.position.Longitude += b.uniform(m.DriftDegrees)
	}
	b.position.Latitude = clamp(b.position.Latitude, m.MinLatitude, m.MaxLatitude)
	b.position.Longitude = clamp(b.position.Longitude, m.MinLongitude, m.MaxLongitude)

	b.seq++
	return PositionReport{Position: b.position, Speed: b.speed, Seq: b.seq}
}

// NextSensors perturbs the sensors by a small bounded delta.
func (b *Boat) NextSensors() Sensors {
	m := b.motion
	b.sensors.Magnetic = clamp(b.sensors.Magnetic+b.uniform(m.MagneticStep), m.MinMagnetic, m.MaxMagnetic)
	b.sensors.Depth = clamp(b.sensors.Depth+b.uniform(m.DepthStep), m.MinDepth, m.MaxDepth)
	return b.sensors
}

// Drain takes one percent off the battery, never going below zero.
func (b *Boat) Drain() BatteryStatus {
	if b.battery > 0 {
		b.battery--
	}

	status := BatteryStatus{Level: b.battery, Exhausted: b.battery == 0}
	if !b.warningSent && b.battery > 0 && b.battery <= b.lowThreshold {
		b.warningSent = true
		status.LowWarning = true
	}
	return status
}

// uniform returns a value in [-limit, limit).
func (b *Boat) uniform(limit float64) float64 {
	return (b.rng.Float64()*2 - 1) * limit
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
