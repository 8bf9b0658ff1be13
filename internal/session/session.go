// Package session runs the protocol for one connected controller: it greets
// with BI, answers commands, emits position and sensor telemetry on their
// own periods and drains the battery until the boat shuts down.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lawnchairsociety/boatsim/internal/boat"
	"github.com/lawnchairsociety/boatsim/internal/config"
	"github.com/lawnchairsociety/boatsim/internal/logger"
	"github.com/lawnchairsociety/boatsim/internal/protocol"
	"github.com/lawnchairsociety/boatsim/internal/schedule"
)

// Conn is one duplex line channel. Lines are passed without their trailing newline.
type Conn interface {
	// ReadLine blocks until a complete line is received.
	ReadLine() (string, error)

	// WriteLine sends one frame followed by a newline.
	WriteLine(line string) error

	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// Reasons a session ends without a transport failure.
var (
	ErrPeerClosed       = errors.New("peer closed the connection")
	ErrBatteryExhausted = errors.New("battery exhausted")
	ErrShutdown         = errors.New("session closed by server")
)

// ErrLineTooLong is returned by Conn.ReadLine for an inbound line over the
// transport's limit. The line is dropped and the session keeps reading.
var ErrLineTooLong = errors.New("inbound line too long")

// TransportError is a failed read or write. It ends the session it happened on.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Phase is the lifecycle stage of a session.
type Phase int32

const (
	Greeting Phase = iota
	Active
	Closing
	Closed
)

func (p Phase) String() string {
	switch p {
	case Greeting:
		return "greeting"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Session owns the state of one connection. Only Run touches the boat and
// the scheduler; Close and the getters are safe from other goroutines.
type Session struct {
	id   string
	conn Conn
	log  *slog.Logger

	boat      *boat.Boat
	telemetry config.TelemetryConfig
	sched     *schedule.Scheduler
	now       func() time.Time

	phase    atomic.Int32
	reason   error
	sent     atomic.Int64
	shutdown atomic.Bool

	lines   chan string
	readErr chan error
	done    chan struct{}
	ended   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// New prepares a session on conn. The boat starts from boatCfg with its own
// random source.
func New(conn Conn, boatCfg config.BoatConfig, telemetry config.TelemetryConfig) (*Session, error) {
	rng, err := boat.NewRand(boatCfg.Seed)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		conn:      conn,
		log:       logger.With("session", id, "remote", conn.RemoteAddr()),
		boat:      boat.New(boatCfg, rng),
		telemetry: telemetry,
		now:       time.Now,
		lines:     make(chan string),
		readErr:   make(chan error, 1),
		done:      make(chan struct{}),
		ended:     make(chan struct{}),
	}
	s.phase.Store(int32(Greeting))
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// FramesSent counts the frames written so far.
func (s *Session) FramesSent() int64 { return s.sent.Load() }

// Ended is closed once Run has returned.
func (s *Session) Ended() <-chan struct{} { return s.ended }

// Reason reports why the session ended. It is nil until Run returns.
func (s *Session) Reason() error {
	select {
	case <-s.ended:
		return s.reason
	default:
		return nil
	}
}

// Run drives the session until the peer leaves, the battery runs out, ctx
// is cancelled, Close is called or a write fails. Only failures are returned;
// Reason reports every ending. Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("session: Run called twice")
	}

	s.log.Info("session started")

	err := endReason(s.loop(ctx), s.shutdown.Load())
	s.finish(err)

	if normalEnd(err) {
		return nil
	}
	return err
}

// endReason maps the loop's result to the recorded reason. Once Close has
// been called, transport failures and a vanished peer are its doing; other
// endings, such as an exhausted battery, stand.
func endReason(err error, closedByServer bool) error {
	if !closedByServer {
		return err
	}
	var terr *TransportError
	if errors.As(err, &terr) || errors.Is(err, ErrPeerClosed) {
		return ErrShutdown
	}
	return err
}

// normalEnd reports whether err is one of the designed ways a session stops.
func normalEnd(err error) bool {
	return errors.Is(err, ErrPeerClosed) ||
		errors.Is(err, ErrBatteryExhausted) ||
		errors.Is(err, ErrShutdown) ||
		errors.Is(err, context.Canceled)
}

func (s *Session) loop(ctx context.Context) error {
	id := s.boat.Identity()
	if err := s.send(protocol.FormatBoatInfo(id.Name, id.Captain, id.Mission)); err != nil {
		return err
	}

	start := s.now()
	sched, err := schedule.New(start,
		schedule.Entry{Class: schedule.Position, Period: s.telemetry.PositionInterval},
		schedule.Entry{Class: schedule.Sensor, Period: s.telemetry.SensorInterval},
		schedule.Entry{Class: schedule.Battery, Period: s.telemetry.BatteryInterval},
	)
	if err != nil {
		return err
	}
	s.sched = sched
	s.phase.Store(int32(Active))

	go s.readLoop()

	timer := time.NewTimer(s.sched.Until(start))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrShutdown
		case err := <-s.readErr:
			return classifyRead(err)
		case line := <-s.lines:
			if err := s.handleLine(line); err != nil {
				return err
			}
		case <-timer.C:
		}

		if err := s.tick(s.now()); err != nil {
			return err
		}
		timer.Reset(s.sched.Until(s.now()))
	}
}

// readLoop forwards inbound lines to Run until the connection fails or the
// session is closed.
func (s *Session) readLoop() {
	for {
		line, err := s.conn.ReadLine()
		if errors.Is(err, ErrLineTooLong) {
			s.log.Warn("oversized line dropped")
			continue
		}
		if err != nil {
			s.readErr <- err
			return
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleLine(line string) error {
	cmd, ok := protocol.Parse(line)
	if !ok {
		return nil
	}

	switch c := cmd.(type) {
	case protocol.GetInfo:
		id := s.boat.Identity()
		return s.send(protocol.FormatBoatInfo(id.Name, id.Captain, id.Mission))

	case protocol.SetSpeed:
		speed := s.boat.SetSpeed(c.Left, c.Right)
		if c.HasWinch {
			s.boat.SetWinch(c.Winch)
		}
		s.log.Debug("speed set", "left", c.Left, "right", c.Right, "speed", speed, "seq", c.Seq)
		return nil

	case protocol.SetMission:
		id := s.boat.SetMission(c.Mission)
		s.log.Info("mission changed", "mission", c.Mission, "seq", c.Seq)
		return s.send(protocol.FormatBoatInfoChange(id.Name, id.Captain, id.Mission))

	case protocol.SetAction:
		s.log.Info("action received", "action", c.Action, "payload", c.Payload, "seq", c.Seq)
		return nil

	case protocol.LostInformation:
		s.log.Info("lost information requested", "seq", c.Seq)
		if err := s.sendPosition(); err != nil {
			return err
		}
		s.sched.MarkFired(schedule.Position, s.now())
		return nil

	case protocol.Unrecognized:
		s.log.Warn("unrecognized line", "line", c.Line, "error", c.Err)
		return nil
	}
	return nil
}

// tick emits every telemetry class due at now, then steps the battery.
func (s *Session) tick(now time.Time) error {
	for _, class := range s.sched.DueNow(now) {
		switch class {
		case schedule.Position:
			if err := s.sendPosition(); err != nil {
				return err
			}
		case schedule.Sensor:
			sensors := s.boat.NextSensors()
			if err := s.send(protocol.FormatSensor(sensors.Magnetic, sensors.Depth)); err != nil {
				return err
			}
		case schedule.Battery:
			if err := s.drainBattery(); err != nil {
				return err
			}
		}
		s.sched.MarkFired(class, now)
	}
	return nil
}

func (s *Session) sendPosition() error {
	r := s.boat.NextPosition()
	return s.send(protocol.FormatPosition(r.Longitude, r.Latitude, r.Speed, r.Seq))
}

func (s *Session) drainBattery() error {
	status := s.boat.Drain()
	if status.LowWarning {
		s.log.Warn("battery low", "level", status.Level)
		if err := s.send(protocol.FormatWarning(protocol.WarnLowBattery)); err != nil {
			return err
		}
	}
	if status.Exhausted {
		return ErrBatteryExhausted
	}
	return nil
}

func (s *Session) send(frame string) error {
	if err := s.conn.WriteLine(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	s.sent.Add(1)
	return nil
}

// classifyRead maps a failed read to the end reason it stands for.
func classifyRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return ErrPeerClosed
	}
	return &TransportError{Op: "read", Err: err}
}

// finish moves through Closing to Closed and records why.
func (s *Session) finish(reason error) {
	s.phase.Store(int32(Closing))
	s.reason = reason
	s.closeConn()
	s.phase.Store(int32(Closed))
	close(s.ended)

	switch {
	case errors.Is(reason, ErrBatteryExhausted):
		logger.Always("boat shut down", "session", s.id, "remote", s.conn.RemoteAddr(), "frames", s.FramesSent())
	case normalEnd(reason):
		s.log.Info("session ended", "reason", reason, "battery", s.boat.Battery(), "frames", s.FramesSent())
	default:
		s.log.Warn("session failed", "error", reason, "battery", s.boat.Battery())
	}
}

// Close ends the session and closes the connection. It is safe to call more
// than once and from any goroutine.
func (s *Session) Close() error {
	s.shutdown.Store(true)
	return s.closeConn()
}

func (s *Session) closeConn() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.phase.Store(int32(Closed))
	})
	return err
}
