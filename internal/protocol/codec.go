package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse decodes one inbound line. The line is trimmed first; an empty line
// yields ok=false and no command. Lines that cannot be decoded come back as
// Unrecognized so the caller can log them and carry on.
func Parse(line string) (cmd Command, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	switch {
	case line == TagGetInfo+fieldSeparator+TagGetInfo:
		return GetInfo{}, true
	case hasFrame(line, TagSetSpeed):
		return parseSetSpeed(line), true
	case hasFrame(line, TagSetMission):
		return parseSetMission(line), true
	case strings.HasPrefix(line, TagSetAction+fieldSeparator):
		return parseSetAction(line), true
	case strings.HasPrefix(line, TagLostInfo+fieldSeparator):
		return parseLostInformation(line), true
	}

	return unrecognized(line, "", "unknown command", nil), true
}

func parseSetSpeed(line string) Command {
	parts := strings.Split(line, fieldSeparator)

	// SS:left:right:seq:SS or SS:left:right:winch:seq:SS
	if len(parts) != 5 && len(parts) != 6 {
		return unrecognized(line, TagSetSpeed, fmt.Sprintf("expected 3 or 4 fields, got %d", len(parts)-2), nil)
	}

	left, err := parseFinite(parts[1])
	if err != nil {
		return unrecognized(line, TagSetSpeed, "invalid left thrust", err)
	}
	right, err := parseFinite(parts[2])
	if err != nil {
		return unrecognized(line, TagSetSpeed, "invalid right thrust", err)
	}

	cmd := SetSpeed{Left: left, Right: right}
	seqField := parts[3]
	if len(parts) == 6 {
		winch, err := strconv.Atoi(parts[3])
		if err != nil {
			return unrecognized(line, TagSetSpeed, "invalid winch", err)
		}
		cmd.Winch = winch
		cmd.HasWinch = true
		seqField = parts[4]
	}

	seq, err := strconv.Atoi(seqField)
	if err != nil {
		return unrecognized(line, TagSetSpeed, "invalid sequence number", err)
	}
	cmd.Seq = seq
	return cmd
}

func parseSetMission(line string) Command {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != 4 {
		return unrecognized(line, TagSetMission, fmt.Sprintf("expected 2 fields, got %d", len(parts)-2), nil)
	}

	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return unrecognized(line, TagSetMission, "invalid sequence number", err)
	}
	return SetMission{Mission: parts[1], Seq: seq}
}

// parseSetAction never fails: the action is informational only.
func parseSetAction(line string) Command {
	fields := frameFields(line, TagSetAction)

	var cmd SetAction
	if len(fields) > 0 {
		cmd.Action = fields[0]
	}
	if len(fields) > 1 {
		cmd.Payload = fields[1]
	}
	if len(fields) > 2 {
		if seq, err := strconv.Atoi(fields[2]); err == nil {
			cmd.Seq = seq
			cmd.HasSeq = true
		}
	}
	return cmd
}

// parseLostInformation never fails; the prefix alone identifies the request.
func parseLostInformation(line string) Command {
	fields := frameFields(line, TagLostInfo)

	var cmd LostInformation
	if len(fields) > 0 {
		if seq, err := strconv.Atoi(fields[0]); err == nil {
			cmd.Seq = seq
			cmd.HasSeq = true
		}
	}
	return cmd
}

// hasFrame reports whether line is enclosed in "TAG:" ... ":TAG".
func hasFrame(line, tag string) bool {
	return strings.HasPrefix(line, tag+fieldSeparator) && strings.HasSuffix(line, fieldSeparator+tag)
}

// frameFields returns the fields between the start tag and the optional end tag.
func frameFields(line, tag string) []string {
	body := strings.TrimPrefix(line, tag+fieldSeparator)
	if hasFrame(line, tag) {
		body = strings.TrimSuffix(body, fieldSeparator+tag)
	}
	if body == "" || body == tag {
		return nil
	}
	return strings.Split(body, fieldSeparator)
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func unrecognized(line, tag, reason string, err error) Unrecognized {
	return Unrecognized{
		Line: line,
		Err:  &ParseError{Tag: tag, Line: line, Reason: reason, Err: err},
	}
}

// FormatBoatInfo serializes a BI frame.
func FormatBoatInfo(name, captain, mission string) string {
	return frame(TagBoatInfo, name, captain, mission)
}

// FormatBoatInfoChange serializes a BIC frame.
func FormatBoatInfoChange(name, captain, mission string) string {
	return frame(TagBoatChange, name, captain, mission)
}

// FormatPosition serializes a PA frame. Coordinates carry 6 decimals, speed 2.
func FormatPosition(lon, lat, speed float64, seq int) string {
	return frame(TagPosition,
		strconv.FormatFloat(lon, 'f', 6, 64),
		strconv.FormatFloat(lat, 'f', 6, 64),
		strconv.FormatFloat(speed, 'f', 2, 64),
		strconv.Itoa(seq),
	)
}

// FormatSensor serializes an SI frame with 2 decimals per value.
func FormatSensor(magnetic, depth float64) string {
	return frame(TagSensor,
		strconv.FormatFloat(magnetic, 'f', 2, 64),
		strconv.FormatFloat(depth, 'f', 2, 64),
	)
}

// FormatWarning serializes a WI frame.
func FormatWarning(code string) string {
	return frame(TagWarning, code)
}

// FormatGetInfo serializes a GBI request.
func FormatGetInfo() string {
	return TagGetInfo + fieldSeparator + TagGetInfo
}

// FormatSetSpeed serializes an SS request in its three-field form.
func FormatSetSpeed(left, right float64, seq int) string {
	return frame(TagSetSpeed,
		strconv.FormatFloat(left, 'f', -1, 64),
		strconv.FormatFloat(right, 'f', -1, 64),
		strconv.Itoa(seq),
	)
}

// FormatSetMission serializes an SM request.
func FormatSetMission(mission string, seq int) string {
	return frame(TagSetMission, mission, strconv.Itoa(seq))
}

// FormatSetAction serializes an SA request the way the controller app does.
func FormatSetAction(action, payload string, seq int) string {
	return frame(TagSetAction, action, payload, strconv.Itoa(seq))
}

// FormatLostInformation serializes an LI request.
func FormatLostInformation(seq int) string {
	return frame(TagLostInfo, strconv.Itoa(seq))
}

func frame(tag string, fields ...string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, f := range fields {
		b.WriteString(fieldSeparator)
		b.WriteString(f)
	}
	b.WriteString(fieldSeparator)
	b.WriteString(tag)
	return b.String()
}
