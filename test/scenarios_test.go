package test

import (
	"testing"
	"time"

	"github.com/lawnchairsociety/boatsim/internal/config"
	"github.com/lawnchairsociety/boatsim/internal/server"
)

// TestConformanceSuite runs every scenario against an in-process simulator
// with shortened periods.
func TestConformanceSuite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telemetry.PositionInterval = 50 * time.Millisecond
	cfg.Telemetry.SensorInterval = 100 * time.Millisecond
	cfg.Telemetry.BatteryInterval = 20 * time.Millisecond

	srv := server.NewServer(cfg)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve()
	defer srv.Shutdown()

	saved := BatteryWait
	BatteryWait = 10 * time.Second
	defer func() { BatteryWait = saved }()

	for _, entry := range getAllTests() {
		t.Run(entry.Name, func(t *testing.T) {
			result := entry.Func(srv.Addr().String())
			if !result.Passed {
				t.Error(result.Message)
			}
		})
	}
}

func TestRunFilteredTests(t *testing.T) {
	names := GetTestNames()
	if len(names) == 0 {
		t.Fatal("no tests registered")
	}

	// Nothing listens on port 1, so every selected scenario fails fast
	results := RunFilteredTests("127.0.0.1:1", "GREETING")
	if len(results) != 1 || results[0].Name != "Greeting" {
		t.Fatalf("RunFilteredTests selected %+v", results)
	}
	if results[0].Passed {
		t.Error("scenario passed without a server")
	}
}

func TestUniqueName(t *testing.T) {
	a, b := uniqueName("boat"), uniqueName("boat")
	if a == b {
		t.Errorf("uniqueName returned %q twice", a)
	}
}
