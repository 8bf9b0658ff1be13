package test

import (
	"fmt"
	"strings"
	"time"

	"github.com/lawnchairsociety/boatsim/internal/protocol"
	"github.com/lawnchairsociety/boatsim/internal/testclient"
)

// =============================================================================
// Group 1: Greeting & Info
// =============================================================================

// connect dials the simulator and waits for the BI greeting.
func connect(testName, base, serverAddr string) (*testclient.TestClient, protocol.BoatInfo, error) {
	name := uniqueName(base)
	logAction(testName, fmt.Sprintf("Connecting as '%s'...", name))
	client, err := testclient.DialGreeted(name, serverAddr, 3*time.Second)
	if err != nil {
		return nil, protocol.BoatInfo{}, err
	}

	ev, err := client.NextEvent(protocol.TagBoatInfo, time.Second)
	if err != nil {
		client.Close()
		return nil, protocol.BoatInfo{}, err
	}
	return client, ev.(protocol.BoatInfo), nil
}

// TestGreeting tests that a new connection is greeted with BI before anything else
func TestGreeting(serverAddr string) TestResult {
	const testName = "Greeting"

	client, info, err := connect(testName, "greeting", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	first := client.GetMessages()[0]
	logResult(testName, strings.HasPrefix(first, "BI:"), fmt.Sprintf("First frame %q", first))
	if !strings.HasPrefix(first, "BI:") {
		return fail(testName, "First frame was %q, expected BI", first)
	}
	if info.Name == "" || info.Captain == "" {
		return fail(testName, "Greeting has empty identity: %+v", info)
	}

	return pass(testName, "Greeted by %s (captain %s, mission %s)", info.Name, info.Captain, info.Mission)
}

// TestGetInfo tests that GBI answers with the same BI as the greeting
func TestGetInfo(serverAddr string) TestResult {
	const testName = "Get Info"

	client, info, err := connect(testName, "info", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	logAction(testName, "Sending GBI")
	client.GetInfo()

	ev, err := client.NextEvent(protocol.TagBoatInfo, 2*time.Second)
	if err != nil {
		return fail(testName, "No BI reply: %v", err)
	}
	reply := ev.(protocol.BoatInfo)
	logResult(testName, reply == info, fmt.Sprintf("Reply %+v", reply))
	if reply != info {
		return fail(testName, "BI reply %+v differs from greeting %+v", reply, info)
	}

	return pass(testName, "GBI round trip matches greeting")
}

// TestSetMission tests that SM answers with exactly one BIC and updates BI
func TestSetMission(serverAddr string) TestResult {
	const testName = "Set Mission"

	client, info, err := connect(testName, "mission", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	mission := "Survey-" + strings.ReplaceAll(client.Name, "-", "")
	logAction(testName, fmt.Sprintf("Setting mission to %s", mission))
	client.SetMission(mission, 1)

	ev, err := client.NextEvent(protocol.TagBoatChange, 2*time.Second)
	if err != nil {
		return fail(testName, "No BIC reply: %v", err)
	}
	change := ev.(protocol.BoatInfo)
	if change.Mission != mission || change.Name != info.Name || change.Captain != info.Captain {
		return fail(testName, "BIC %+v does not carry the new mission", change)
	}

	client.GetInfo()
	ev, err = client.NextEvent(protocol.TagBoatInfo, 2*time.Second)
	if err != nil {
		return fail(testName, "No BI reply after SM: %v", err)
	}
	if got := ev.(protocol.BoatInfo).Mission; got != mission {
		return fail(testName, "BI mission is %q after SM, expected %q", got, mission)
	}

	if n := client.CountPrefix(protocol.TagBoatChange + ":"); n != 1 {
		return fail(testName, "Received %d BIC frames, expected exactly 1", n)
	}

	return pass(testName, "BIC received and BI reflects mission %s", mission)
}

// =============================================================================
// Group 2: Commands
// =============================================================================

// TestSetSpeedIsSilent tests that SS has no reply and sets the reported speed
func TestSetSpeedIsSilent(serverAddr string) TestResult {
	const testName = "Set Speed Is Silent"

	client, _, err := connect(testName, "speed", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	logAction(testName, "Sending SS 3.0 5.0")
	client.SetSpeed(3.0, 5.0, 1)
	time.Sleep(300 * time.Millisecond)

	for _, msg := range client.GetMessages()[1:] {
		if !strings.HasPrefix(msg, "PA:") && !strings.HasPrefix(msg, "SI:") && !strings.HasPrefix(msg, "WI:") {
			return fail(testName, "SS produced a reply: %q", msg)
		}
	}

	// The next position report, periodic or requested, carries the new speed
	client.ClearMessages()
	client.LostInformation(2)
	ev, err := client.NextEvent(protocol.TagPosition, 2*time.Second)
	if err != nil {
		return fail(testName, "No PA after SS: %v", err)
	}
	speed := ev.(protocol.Position).Speed
	logResult(testName, speed == 4.0, fmt.Sprintf("Reported speed %v", speed))
	if speed != 4.0 {
		return fail(testName, "Reported speed %v, expected the mean 4.0", speed)
	}

	return pass(testName, "No reply to SS, speed reported as 4.0")
}

// TestSetAction tests that SA is accepted without a reply or a disconnect
func TestSetAction(serverAddr string) TestResult {
	const testName = "Set Action"

	client, info, err := connect(testName, "action", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	client.SetAction("CAPTURE", "photo-1", 1)
	client.GetInfo()

	ev, err := client.NextEvent(protocol.TagBoatInfo, 2*time.Second)
	if err != nil {
		return fail(testName, "Session unresponsive after SA: %v", err)
	}
	if ev.(protocol.BoatInfo) != info {
		return fail(testName, "SA changed the boat info: %+v", ev)
	}

	return pass(testName, "SA accepted silently")
}

// TestLostInformation tests that LI answers with a PA that continues the sequence
func TestLostInformation(serverAddr string) TestResult {
	const testName = "Lost Information"

	client, _, err := connect(testName, "lost", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	last := 0
	for i := 1; i <= 3; i++ {
		logAction(testName, fmt.Sprintf("Sending LI #%d", i))
		client.LostInformation(i)
		ev, err := client.NextEvent(protocol.TagPosition, 2*time.Second)
		if err != nil {
			return fail(testName, "No PA after LI #%d: %v", i, err)
		}
		seq := ev.(protocol.Position).Seq
		if seq != last+1 {
			return fail(testName, "PA sequence went from %d to %d", last, seq)
		}
		last = seq
	}

	return pass(testName, "Three LI requests answered, last sequence %d", last)
}

// TestMalformedInput tests that garbage lines are ignored and the session survives
func TestMalformedInput(serverAddr string) TestResult {
	const testName = "Malformed Input"

	client, info, err := connect(testName, "garbage", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	client.SetSpeed(2.0, 2.0, 1)
	for _, line := range []string{"HELLO", "SS:abc:2.0:5:SS", "SS:1:2:SS", "SM:SM", "::::", "GBI"} {
		logAction(testName, fmt.Sprintf("Sending %q", line))
		client.SendCommand(line)
	}

	client.GetInfo()
	ev, err := client.NextEvent(protocol.TagBoatInfo, 2*time.Second)
	if err != nil {
		return fail(testName, "Session unresponsive after malformed input: %v", err)
	}
	if ev.(protocol.BoatInfo) != info {
		return fail(testName, "Malformed input changed the boat info: %+v", ev)
	}

	client.LostInformation(2)
	ev, err = client.NextEvent(protocol.TagPosition, 2*time.Second)
	if err != nil {
		return fail(testName, "No PA after malformed input: %v", err)
	}
	if speed := ev.(protocol.Position).Speed; speed != 2.0 {
		return fail(testName, "Malformed SS changed the speed to %v", speed)
	}

	return pass(testName, "Malformed lines ignored")
}

// =============================================================================
// Group 3: Telemetry
// =============================================================================

// TestPositionSequence tests that periodic PA frames count 1, 2, 3
func TestPositionSequence(serverAddr string) TestResult {
	const testName = "Position Sequence"

	client, _, err := connect(testName, "position", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	for want := 1; want <= 3; want++ {
		ev, err := client.NextEvent(protocol.TagPosition, 3*time.Second)
		if err != nil {
			return fail(testName, "Waiting for PA #%d: %v", want, err)
		}
		pos := ev.(protocol.Position)
		logResult(testName, pos.Seq == want, fmt.Sprintf("PA seq=%d lat=%v lon=%v", pos.Seq, pos.Latitude, pos.Longitude))
		if pos.Seq != want {
			return fail(testName, "PA #%d has sequence %d", want, pos.Seq)
		}
		if pos.Speed != 0 {
			return fail(testName, "Idle boat reports speed %v", pos.Speed)
		}
	}

	return pass(testName, "PA sequence 1, 2, 3")
}

// TestSensorRanges tests that SI frames arrive with plausible values
func TestSensorRanges(serverAddr string) TestResult {
	const testName = "Sensor Ranges"

	client, _, err := connect(testName, "sensor", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	for i := 1; i <= 2; i++ {
		ev, err := client.NextEvent(protocol.TagSensor, 5*time.Second)
		if err != nil {
			return fail(testName, "Waiting for SI #%d: %v", i, err)
		}
		si := ev.(protocol.Sensor)
		logResult(testName, true, fmt.Sprintf("SI magnetic=%v depth=%v", si.Magnetic, si.Depth))
		if si.Depth < 0 {
			return fail(testName, "Negative depth %v", si.Depth)
		}
	}

	return pass(testName, "Two SI frames received")
}

// TestIndependentSessions tests that two controllers do not share counters or state
func TestIndependentSessions(serverAddr string) TestResult {
	const testName = "Independent Sessions"

	a, info, err := connect(testName, "alpha", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect first client: %v", err)
	}
	defer a.Close()

	b, _, err := connect(testName, "bravo", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect second client: %v", err)
	}
	defer b.Close()

	a.SetMission("Elsewhere", 1)
	if _, err := a.NextEvent(protocol.TagBoatChange, 2*time.Second); err != nil {
		return fail(testName, "No BIC on first client: %v", err)
	}

	b.GetInfo()
	ev, err := b.NextEvent(protocol.TagBoatInfo, 2*time.Second)
	if err != nil {
		return fail(testName, "No BI on second client: %v", err)
	}
	if ev.(protocol.BoatInfo) != info {
		return fail(testName, "Second client sees %+v after first changed its mission", ev)
	}

	return pass(testName, "Mission change stayed on its own session")
}

// =============================================================================
// Group 4: Battery
// =============================================================================

// TestFullScenario drives a boat from greeting to battery shutdown:
// GBI, SS, SM, periodic PA and SI, one LOW_BATTERY warning, then the close.
func TestFullScenario(serverAddr string) TestResult {
	const testName = "Full Scenario"

	client, info, err := connect(testName, "voyage", serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	client.GetInfo()
	if _, err := client.NextEvent(protocol.TagBoatInfo, 2*time.Second); err != nil {
		return fail(testName, "No BI reply: %v", err)
	}

	client.SetSpeed(3.0, 5.0, 1)
	client.SetMission("Voyage", 2)
	ev, err := client.NextEvent(protocol.TagBoatChange, 2*time.Second)
	if err != nil {
		return fail(testName, "No BIC reply: %v", err)
	}
	if ev.(protocol.BoatInfo).Name != info.Name {
		return fail(testName, "BIC names another boat: %+v", ev)
	}

	ev, err = client.NextEvent(protocol.TagPosition, 3*time.Second)
	if err != nil {
		return fail(testName, "No PA: %v", err)
	}
	if speed := ev.(protocol.Position).Speed; speed != 4.0 {
		return fail(testName, "PA speed %v, expected 4.0", speed)
	}
	if _, err := client.NextEvent(protocol.TagSensor, 5*time.Second); err != nil {
		return fail(testName, "No SI: %v", err)
	}

	logAction(testName, fmt.Sprintf("Waiting up to %v for the battery to run out", BatteryWait))
	if !client.WaitForClose(BatteryWait) {
		return fail(testName, "Connection still open after %v", BatteryWait)
	}

	warnings := client.CountPrefix(protocol.FormatWarning(protocol.WarnLowBattery))
	logResult(testName, warnings == 1, fmt.Sprintf("%d LOW_BATTERY warnings", warnings))
	if warnings != 1 {
		return fail(testName, "Received %d LOW_BATTERY warnings, expected exactly 1", warnings)
	}

	return pass(testName, "Boat shut down after %d frames", len(client.GetMessages()))
}
