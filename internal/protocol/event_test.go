package protocol

import (
	"testing"
)

func TestBoatInfoRoundTrip(t *testing.T) {
	identities := [][3]string{
		{"TestBoat", "TestCaptain", "TestMission"},
		{"Orka", "Kowalski", ""},
		{"Boat 7", "Jan Nowak", "Lake survey"},
	}

	for _, id := range identities {
		ev, err := ParseEvent(FormatBoatInfo(id[0], id[1], id[2]))
		if err != nil {
			t.Fatalf("ParseEvent(BI %v) failed: %v", id, err)
		}
		want := BoatInfo{Name: id[0], Captain: id[1], Mission: id[2]}
		if ev != want {
			t.Errorf("BI round trip = %#v, want %#v", ev, want)
		}

		ev, err = ParseEvent(FormatBoatInfoChange(id[0], id[1], id[2]))
		if err != nil {
			t.Fatalf("ParseEvent(BIC %v) failed: %v", id, err)
		}
		want.Changed = true
		if ev != want {
			t.Errorf("BIC round trip = %#v, want %#v", ev, want)
		}
		if ev.Tag() != TagBoatChange {
			t.Errorf("BIC Tag() = %q, want %q", ev.Tag(), TagBoatChange)
		}
	}
}

func TestParseEventTelemetry(t *testing.T) {
	ev, err := ParseEvent(FormatPosition(16.957722, 52.404633, 4, 3))
	if err != nil {
		t.Fatalf("ParseEvent(PA) failed: %v", err)
	}
	pos, ok := ev.(Position)
	if !ok {
		t.Fatalf("ParseEvent(PA) = %T, want Position", ev)
	}
	if pos.Longitude != 16.957722 || pos.Latitude != 52.404633 || pos.Speed != 4 || pos.Seq != 3 {
		t.Errorf("Position = %+v", pos)
	}

	ev, err = ParseEvent(FormatSensor(45.5, 2.25))
	if err != nil {
		t.Fatalf("ParseEvent(SI) failed: %v", err)
	}
	if want := (Sensor{Magnetic: 45.5, Depth: 2.25}); ev != want {
		t.Errorf("Sensor = %#v, want %#v", ev, want)
	}

	ev, err = ParseEvent(FormatWarning(WarnLowBattery) + "\n")
	if err != nil {
		t.Fatalf("ParseEvent(WI) failed: %v", err)
	}
	if want := (Warning{Code: WarnLowBattery}); ev != want {
		t.Errorf("Warning = %#v, want %#v", ev, want)
	}
}

func TestParseEventErrors(t *testing.T) {
	lines := []string{
		"",
		"GBI:GBI",
		"BI:a:b:BI",
		"PA:1:2:3:PA",
		"PA:x:2:3:4:PA",
		"PA:1:2:3:x:PA",
		"SI:1:SI",
		"SI:1:x:SI",
		"WI::WI",
	}
	for _, line := range lines {
		if ev, err := ParseEvent(line); err == nil {
			t.Errorf("ParseEvent(%q) = %#v, want error", line, ev)
		}
	}
}
