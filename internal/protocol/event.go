package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Event is a decoded outbound frame, as seen by a controller.
type Event interface {
	Tag() string
}

// BoatInfo is the BI frame, or the BIC frame when Changed is set.
type BoatInfo struct {
	Name    string
	Captain string
	Mission string
	Changed bool
}

// Position is the PA frame.
type Position struct {
	Longitude float64
	Latitude  float64
	Speed     float64
	Seq       int
}

// Sensor is the SI frame.
type Sensor struct {
	Magnetic float64
	Depth    float64
}

// Warning is the WI frame.
type Warning struct {
	Code string
}

func (e BoatInfo) Tag() string {
	if e.Changed {
		return TagBoatChange
	}
	return TagBoatInfo
}
func (Position) Tag() string { return TagPosition }
func (Sensor) Tag() string   { return TagSensor }
func (Warning) Tag() string  { return TagWarning }

// ParseEvent decodes a frame produced by one of the Format functions.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimSpace(line)

	for _, tag := range []string{TagBoatChange, TagBoatInfo, TagPosition, TagSensor, TagWarning} {
		if !hasFrame(line, tag) {
			continue
		}
		fields := frameFields(line, tag)
		switch tag {
		case TagBoatInfo, TagBoatChange:
			if len(fields) != 3 {
				return nil, eventFieldCount(line, tag, 3, len(fields))
			}
			return BoatInfo{Name: fields[0], Captain: fields[1], Mission: fields[2], Changed: tag == TagBoatChange}, nil
		case TagPosition:
			return parsePosition(line, fields)
		case TagSensor:
			return parseSensor(line, fields)
		case TagWarning:
			if len(fields) != 1 {
				return nil, eventFieldCount(line, tag, 1, len(fields))
			}
			return Warning{Code: fields[0]}, nil
		}
	}
	return nil, &ParseError{Line: line, Reason: "unknown event"}
}

func parsePosition(line string, fields []string) (Event, error) {
	if len(fields) != 4 {
		return nil, eventFieldCount(line, TagPosition, 4, len(fields))
	}
	var (
		p   Position
		err error
	)
	if p.Longitude, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return nil, &ParseError{Tag: TagPosition, Line: line, Reason: "invalid longitude", Err: err}
	}
	if p.Latitude, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return nil, &ParseError{Tag: TagPosition, Line: line, Reason: "invalid latitude", Err: err}
	}
	if p.Speed, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return nil, &ParseError{Tag: TagPosition, Line: line, Reason: "invalid speed", Err: err}
	}
	if p.Seq, err = strconv.Atoi(fields[3]); err != nil {
		return nil, &ParseError{Tag: TagPosition, Line: line, Reason: "invalid sequence number", Err: err}
	}
	return p, nil
}

func parseSensor(line string, fields []string) (Event, error) {
	if len(fields) != 2 {
		return nil, eventFieldCount(line, TagSensor, 2, len(fields))
	}
	var (
		s   Sensor
		err error
	)
	if s.Magnetic, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return nil, &ParseError{Tag: TagSensor, Line: line, Reason: "invalid magnetic heading", Err: err}
	}
	if s.Depth, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return nil, &ParseError{Tag: TagSensor, Line: line, Reason: "invalid depth", Err: err}
	}
	return s, nil
}

func eventFieldCount(line, tag string, want, got int) error {
	return &ParseError{Tag: tag, Line: line, Reason: fmt.Sprintf("expected %d fields, got %d", want, got)}
}
