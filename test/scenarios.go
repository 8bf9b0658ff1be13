package test

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// uniqueCounter provides unique client names within a single run
var uniqueCounter uint64

// uniqueName generates a unique client name by appending a counter
func uniqueName(base string) string {
	return fmt.Sprintf("%s-%d", base, atomic.AddUint64(&uniqueCounter, 1))
}

// Verbose controls whether detailed logging is shown during tests
var Verbose = false

// BatteryWait bounds the scenarios that wait for the boat to shut down.
// With the default config a full battery lasts about 100 seconds.
var BatteryWait = 2 * time.Minute

// TestResult represents the result of a test
type TestResult struct {
	Name    string
	Passed  bool
	Message string
}

// logAction logs a test action when verbose mode is enabled
func logAction(testName, action string) {
	if Verbose {
		fmt.Printf("  [%s] %s\n", testName, action)
	}
}

// logResult logs an expected vs actual result when verbose mode is enabled
func logResult(testName string, success bool, detail string) {
	if Verbose {
		status := "OK"
		if !success {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %s: %s\n", testName, status, detail)
	}
}

func pass(name, format string, args ...any) TestResult {
	return TestResult{Name: name, Passed: true, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) TestResult {
	return TestResult{Name: name, Passed: false, Message: fmt.Sprintf(format, args...)}
}

// testEntry holds a test function and its name
type testEntry struct {
	Name string
	Func func(string) TestResult
	Slow bool // waits for the battery to run out
}

// getAllTests returns all test entries in order
func getAllTests() []testEntry {
	return []testEntry{
		// Group 1: Greeting & Info
		{Name: "Greeting", Func: TestGreeting},
		{Name: "Get Info", Func: TestGetInfo},
		{Name: "Set Mission", Func: TestSetMission},

		// Group 2: Commands
		{Name: "Set Speed Is Silent", Func: TestSetSpeedIsSilent},
		{Name: "Set Action", Func: TestSetAction},
		{Name: "Lost Information", Func: TestLostInformation},
		{Name: "Malformed Input", Func: TestMalformedInput},

		// Group 3: Telemetry
		{Name: "Position Sequence", Func: TestPositionSequence},
		{Name: "Sensor Ranges", Func: TestSensorRanges},
		{Name: "Independent Sessions", Func: TestIndependentSessions},

		// Group 4: Battery
		{Name: "Full Scenario", Func: TestFullScenario, Slow: true},
	}
}

// RunAllTests runs all integration tests. Slow tests run only when
// includeSlow is set.
func RunAllTests(serverAddr string, includeSlow bool) []TestResult {
	results := make([]TestResult, 0)
	for _, t := range getAllTests() {
		if t.Slow && !includeSlow {
			continue
		}
		results = append(results, t.Func(serverAddr))
	}
	return results
}

// GetTestNames returns the names of all available tests
func GetTestNames() []string {
	tests := getAllTests()
	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.Name
	}
	return names
}

// RunFilteredTests runs only tests whose names contain the filter string (case-insensitive)
func RunFilteredTests(serverAddr string, filter string) []TestResult {
	results := make([]TestResult, 0)
	filterLower := strings.ToLower(filter)

	for _, t := range getAllTests() {
		if strings.Contains(strings.ToLower(t.Name), filterLower) {
			results = append(results, t.Func(serverAddr))
		}
	}

	return results
}

// PrintResults prints all test results in a formatted way
func PrintResults(results []TestResult) {
	passed := 0
	failed := 0

	fmt.Println("============================================================")
	fmt.Println("Conformance Test Results")
	fmt.Println("============================================================")
	fmt.Println()

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			failed++
		} else {
			passed++
		}
		fmt.Printf("[%s] %s: %s\n", status, r.Name, r.Message)
	}

	fmt.Println()
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Total: %d | Passed: %d | Failed: %d\n", len(results), passed, failed)
	fmt.Println("------------------------------------------------------------")
}
