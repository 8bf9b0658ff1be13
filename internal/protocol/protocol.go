// Package protocol implements the colon-delimited line protocol spoken between
// the boat controller application and the simulated boat.
//
// Every frame is one line of UTF-8 text. Most frames carry the same tag at the
// start and at the end, e.g. "BI:name:captain:mission:BI". Framing (buffering
// partial reads and splitting on '\n') is done by the transport, not here.
package protocol

// Frame tags sent by the controller.
const (
	TagGetInfo     = "GBI"
	TagSetSpeed    = "SS"
	TagSetMission  = "SM"
	TagSetAction   = "SA"
	TagLostInfo    = "LI"
	TagBoatInfo    = "BI"
	TagBoatChange  = "BIC"
	TagPosition    = "PA"
	TagSensor      = "SI"
	TagWarning     = "WI"
	fieldSeparator = ":"
)

// Warning codes carried by WI frames.
const (
	WarnLowBattery = "LOW_BATTERY"

	// WarnServerBusy is sent instead of BI when a connection is refused.
	WarnServerBusy = "SERVER_BUSY"
)

// Command is a decoded inbound frame. The concrete type identifies the command.
type Command interface {
	Tag() string
}

// GetInfo asks the boat to resend its identity.
type GetInfo struct{}

// SetSpeed sets the left and right thrust. The controller application also sends
// a winch state; HasWinch reports whether the frame carried it.
type SetSpeed struct {
	Left     float64
	Right    float64
	Winch    int
	HasWinch bool
	Seq      int
}

// SetMission replaces the current mission name.
type SetMission struct {
	Mission string
	Seq     int
}

// SetAction requests a named action. Missing fields are left empty.
type SetAction struct {
	Action  string
	Payload string
	Seq     int
	HasSeq  bool
}

// LostInformation asks for an immediate position report.
type LostInformation struct {
	Seq    int
	HasSeq bool
}

// Unrecognized wraps a line that could not be decoded. Err is always a *ParseError.
type Unrecognized struct {
	Line string
	Err  error
}

func (GetInfo) Tag() string         { return TagGetInfo }
func (SetSpeed) Tag() string        { return TagSetSpeed }
func (SetMission) Tag() string      { return TagSetMission }
func (SetAction) Tag() string       { return TagSetAction }
func (LostInformation) Tag() string { return TagLostInfo }
func (Unrecognized) Tag() string    { return "" }

// ParseError describes why an inbound line was rejected.
type ParseError struct {
	Tag    string
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse"
	if e.Tag != "" {
		msg += " " + e.Tag
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
