package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/lawnchairsociety/boatsim/internal/session"
)

// TestTCPClient_ReadLine_OversizedLine tests that a line over the limit is
// dropped whole and reading resumes on the next line
func TestTCPClient_ReadLine_OversizedLine(t *testing.T) {
	server, peer := net.Pipe()
	defer server.Close()

	exact := "SM:" + strings.Repeat("a", MaxLineLength-8) + ":1:SM"
	go func() {
		peer.Write([]byte(strings.Repeat("X", 70000) + "\nGBI:GBI\r\n" + exact + "\n"))
		peer.Close()
	}()

	client := NewTCPClient(server, 0)

	if _, err := client.ReadLine(); !errors.Is(err, session.ErrLineTooLong) {
		t.Fatalf("first ReadLine error = %v, want ErrLineTooLong", err)
	}

	line, err := client.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine after oversized line failed: %v", err)
	}
	if line != "GBI:GBI" {
		t.Errorf("Expected 'GBI:GBI', got %q", line)
	}

	line, err = client.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine of a line at the limit failed: %v", err)
	}
	if len(line) != MaxLineLength {
		t.Errorf("line at the limit came back with %d bytes, want %d", len(line), MaxLineLength)
	}

	if _, err := client.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine after close = %v, want io.EOF", err)
	}
}

func TestTCPClient_ReadLine_LastLineWithoutNewline(t *testing.T) {
	server, peer := net.Pipe()
	defer server.Close()

	go func() {
		peer.Write([]byte("LI:LI\nGBI:GBI"))
		peer.Close()
	}()

	client := NewTCPClient(server, 0)
	for _, want := range []string{"LI:LI", "GBI:GBI"} {
		line, err := client.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if line != want {
			t.Errorf("Expected %q, got %q", want, line)
		}
	}
	if client.Transport() != "tcp" {
		t.Errorf("Transport() = %q, want tcp", client.Transport())
	}
}
