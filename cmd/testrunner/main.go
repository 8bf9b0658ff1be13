package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lawnchairsociety/boatsim/test"
)

func main() {
	serverAddr := flag.String("addr", "localhost:9000", "Boat simulator address")
	verbose := flag.Bool("v", false, "Verbose output - show detailed actions for each test")
	filter := flag.String("run", "", "Run only tests whose name contains this string")
	slow := flag.Bool("slow", false, "Include tests that wait for the battery to run out")
	batteryWait := flag.Duration("battery-wait", test.BatteryWait, "How long slow tests wait for the boat to shut down")
	list := flag.Bool("list", false, "List test names and exit")
	flag.Parse()

	if *list {
		for _, name := range test.GetTestNames() {
			fmt.Println(name)
		}
		return
	}

	// Set verbose mode
	test.Verbose = *verbose
	test.BatteryWait = *batteryWait

	fmt.Printf("Running conformance tests against %s\n", *serverAddr)
	fmt.Println("Make sure the boat simulator is running!")
	if *verbose {
		fmt.Println("Verbose mode enabled - showing detailed test actions")
	}
	fmt.Println()

	var results []test.TestResult
	if *filter != "" {
		results = test.RunFilteredTests(*serverAddr, *filter)
	} else {
		results = test.RunAllTests(*serverAddr, *slow)
	}
	test.PrintResults(results)

	// Exit with error code if any tests failed
	for _, result := range results {
		if !result.Passed {
			os.Exit(1)
		}
	}
}
