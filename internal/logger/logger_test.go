package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"debug", slog.LevelDebug},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo}, // Default to INFO
		{"", slog.LevelInfo},         // Default to INFO
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLogLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Load config from non-existent file
	config, err := LoadConfig("nonexistent.yaml")
	if err != nil {
		t.Fatalf("LoadConfig returned error for missing file: %v", err)
	}

	// Verify defaults
	if config.Level != "INFO" {
		t.Errorf("Default level = %q, want %q", config.Level, "INFO")
	}
	if !config.ConsoleEnabled {
		t.Error("Default ConsoleEnabled = false, want true")
	}
	if config.ConsoleFormat != "text" {
		t.Errorf("Default ConsoleFormat = %q, want %q", config.ConsoleFormat, "text")
	}
	if config.FileEnabled {
		t.Error("Default FileEnabled = true, want false")
	}
	if config.FilePath != "logs/boatsim.log" {
		t.Errorf("Default FilePath = %q, want %q", config.FilePath, "logs/boatsim.log")
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	// Create a temporary YAML file
	tmpFile, err := os.CreateTemp("", "logging-test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	yamlContent := `logging:
  level: DEBUG
  console_enabled: true
  console_format: json
  file_enabled: true
  file_path: test.log
  file_max_size_mb: 20
`
	if _, err := tmpFile.Write([]byte(yamlContent)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()

	// Load config
	config, err := LoadConfig(tmpFile.Name())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	// Verify loaded values
	if config.Level != "DEBUG" {
		t.Errorf("Level = %q, want %q", config.Level, "DEBUG")
	}
	if config.ConsoleFormat != "json" {
		t.Errorf("ConsoleFormat = %q, want %q", config.ConsoleFormat, "json")
	}
	if !config.FileEnabled {
		t.Error("FileEnabled = false, want true")
	}
	if config.FilePath != "test.log" {
		t.Errorf("FilePath = %q, want %q", config.FilePath, "test.log")
	}
	if config.FileMaxSizeMB != 20 {
		t.Errorf("FileMaxSizeMB = %d, want %d", config.FileMaxSizeMB, 20)
	}
}

func TestEnvVarOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("LOG_CONSOLE_FORMAT", "json")
	t.Setenv("LOG_FILE_ENABLED", "true")
	t.Setenv("LOG_FILE_PATH", "/custom/path.log")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if config.Level != "ERROR" {
		t.Errorf("Level = %q, want %q (from env var)", config.Level, "ERROR")
	}
	if config.ConsoleFormat != "json" {
		t.Errorf("ConsoleFormat = %q, want %q (from env var)", config.ConsoleFormat, "json")
	}
	if !config.FileEnabled {
		t.Error("FileEnabled = false, want true (from env var)")
	}
	if config.FilePath != "/custom/path.log" {
		t.Errorf("FilePath = %q, want %q (from env var)", config.FilePath, "/custom/path.log")
	}
}

func TestEnvVarInvalidBool(t *testing.T) {
	t.Setenv("LOG_FILE_ENABLED", "maybe")

	if _, err := LoadConfig(""); err == nil {
		t.Error("expected error for unparsable LOG_FILE_ENABLED")
	}
}

func TestLoadConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boatsim.yaml")
	content := `server:
  port: 9000
logging:
  file_format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !config.ConsoleEnabled {
		t.Error("ConsoleEnabled reset to false by a file that does not mention it")
	}
	if config.FileFormat != "json" {
		t.Errorf("FileFormat = %q, want json", config.FileFormat)
	}
	if config.FileMaxBackups != 5 {
		t.Errorf("FileMaxBackups = %d, want default 5", config.FileMaxBackups)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	l := With("session", "abc", "remote", "127.0.0.1:5000")
	l.Info("frame sent", "tag", "BI")

	output := buf.String()
	for _, want := range []string{"session=abc", "remote=127.0.0.1:5000", "tag=BI", "frame sent"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}

	logger = nil
	With("session", "x").Error("dropped")
}

func TestNewHandlerFormats(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{`msg="frame sent"`, "tag=PA", "seq=3"}},
		{"", []string{`msg="frame sent"`, "tag=PA"}},
		{"json", []string{`"msg":"frame sent"`, `"tag":"PA"`, `"seq":3`}},
		{"JSON", []string{`"msg":"frame sent"`, `"seq":3`}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger = slog.New(newHandler(&buf, tt.format, slog.LevelInfo))
			defer func() { logger = nil }()

			Info("frame sent", "tag", "PA", "seq", 3)
			Debug("below the level")

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q: %s", want, output)
				}
			}
			if strings.Contains(output, "below the level") {
				t.Errorf("DEBUG record written at INFO level: %s", output)
			}
		})
	}
}

func TestNewHandlerNamesAlwaysLevel(t *testing.T) {
	var text, js bytes.Buffer
	logger = slog.New(newMultiHandler(
		newHandler(&text, "text", slog.LevelError),
		newHandler(&js, "json", slog.LevelError),
	))
	defer func() { logger = nil }()

	Always("boat shut down", "frames", 120)
	Warning("battery low")

	if !strings.Contains(text.String(), "level=ALWAYS") {
		t.Errorf("text output missing level=ALWAYS: %s", text.String())
	}
	if !strings.Contains(js.String(), `"level":"ALWAYS"`) {
		t.Errorf("json output missing ALWAYS level: %s", js.String())
	}
	if strings.Contains(text.String()+js.String(), "battery low") {
		t.Error("WARN record written at ERROR level")
	}
}

func TestAlwaysBypassesLogLevel(t *testing.T) {
	var buf bytes.Buffer

	// Create logger with ERROR level (highest standard level)
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelError,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				if level == LevelAlways {
					a.Value = slog.StringValue("ALWAYS")
				}
			}
			return a
		},
	})
	logger = slog.New(handler)

	// Log at different levels
	Debug("Debug message")   // Should not appear
	Info("Info message")     // Should not appear
	Warning("Warning")       // Should not appear
	Error("Error message")   // Should appear
	Always("Always message") // Should appear (bypasses level filter)

	output := buf.String()

	// Only ERROR and ALWAYS should appear
	if strings.Contains(output, "Debug message") {
		t.Error("DEBUG appeared when level is ERROR")
	}
	if strings.Contains(output, "Info message") {
		t.Error("INFO appeared when level is ERROR")
	}
	if strings.Contains(output, "Warning") {
		t.Error("WARNING appeared when level is ERROR")
	}
	if !strings.Contains(output, "Error message") {
		t.Error("ERROR message missing from output")
	}
	if !strings.Contains(output, "Always message") {
		t.Error("ALWAYS message missing from output (should bypass level filter)")
	}
	if !strings.Contains(output, "level=ALWAYS") {
		t.Error("ALWAYS level not formatted correctly")
	}
}

func TestFormattedLogging(t *testing.T) {
	var buf bytes.Buffer

	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger = slog.New(handler)

	// Test formatted variants
	Debugf("Debug: %d + %d = %d", 1, 2, 3)
	Infof("Info: %s", "test")
	Warningf("Warning: %.2f%%", 99.95)
	Errorf("Error: %v", "failed")
	Alwaysf("Always: %s %d", "count", 5)

	output := buf.String()

	if !strings.Contains(output, "Debug: 1 + 2 = 3") {
		t.Error("Debugf output incorrect")
	}
	if !strings.Contains(output, "Info: test") {
		t.Error("Infof output incorrect")
	}
	if !strings.Contains(output, "Warning: 99.95%") {
		t.Error("Warningf output incorrect")
	}
	if !strings.Contains(output, "Error: failed") {
		t.Error("Errorf output incorrect")
	}
	if !strings.Contains(output, "Always: count 5") {
		t.Error("Alwaysf output incorrect")
	}
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer

	// One handler per destination, each with its own level
	multiH := newMultiHandler(
		newHandler(&debugBuf, "text", slog.LevelDebug),
		newHandler(&warnBuf, "text", slog.LevelWarn),
	)
	logger = slog.New(multiH)
	defer func() { logger = nil }()

	Debug("speed set", "speed", 4.0)
	Warning("battery low", "level", 15)

	if !strings.Contains(debugBuf.String(), "speed set") || !strings.Contains(debugBuf.String(), "battery low") {
		t.Errorf("DEBUG handler missed a record: %s", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "speed set") {
		t.Errorf("WARN handler got a DEBUG record: %s", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), "level=15") {
		t.Errorf("WARN handler missed the warning: %s", warnBuf.String())
	}

	if !multiH.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("multiHandler should be enabled when any handler is")
	}
}

func TestMultiHandlerWithAttrsReachesEveryHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	logger = slog.New(newMultiHandler(
		newHandler(&buf1, "text", slog.LevelInfo),
		newHandler(&buf2, "json", slog.LevelInfo),
	))
	defer func() { logger = nil }()

	With("session", "abc").WithGroup("boat").Info("mission changed", "mission", "Patrol")

	if !strings.Contains(buf1.String(), "session=abc") || !strings.Contains(buf1.String(), "boat.mission=Patrol") {
		t.Errorf("text handler output: %s", buf1.String())
	}
	if !strings.Contains(buf2.String(), `"session":"abc"`) || !strings.Contains(buf2.String(), `"boat":{"mission":"Patrol"}`) {
		t.Errorf("json handler output: %s", buf2.String())
	}
}

// failingHandler accepts every record and fails to write it.
type failingHandler struct{ err error }

func (h failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h failingHandler) WithGroup(string) slog.Handler             { return h }

func TestMultiHandlerJoinsErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	errPipe := errors.New("broken pipe")
	var buf bytes.Buffer

	h := newMultiHandler(failingHandler{errDisk}, newHandler(&buf, "text", slog.LevelInfo), failingHandler{errPipe})
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "session ended", 0)

	err := h.Handle(context.Background(), r)
	if !errors.Is(err, errDisk) || !errors.Is(err, errPipe) {
		t.Errorf("Handle() = %v, want both handler errors", err)
	}
	if !strings.Contains(buf.String(), "session ended") {
		t.Error("a failing handler kept the record from the healthy one")
	}

	ok := newMultiHandler(newHandler(&buf, "text", slog.LevelInfo))
	if err := ok.Handle(context.Background(), r); err != nil {
		t.Errorf("Handle() with healthy handlers = %v, want nil", err)
	}
}

func TestNilLogger(t *testing.T) {
	// Set logger to nil to test defensive nil checks
	logger = nil

	// These should not panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logging with nil logger caused panic: %v", r)
		}
	}()

	Debug("debug")
	Info("info")
	Warning("warning")
	Error("error")
	Always("always")
}

func TestInitializeFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boatsim.log")
	err := Initialize(Config{
		Level:         "DEBUG",
		FileEnabled:   true,
		FilePath:      path,
		FileFormat:    "json",
		FileMaxSizeMB: 1,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer func() { logger = nil }()

	Debug("written to file", "seq", 3)
	Always("session closed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	output := string(data)
	if !strings.Contains(output, `"msg":"written to file"`) || !strings.Contains(output, `"seq":3`) {
		t.Errorf("log file missing debug record: %s", output)
	}
	if !strings.Contains(output, `"level":"ALWAYS"`) {
		t.Errorf("log file missing ALWAYS level: %s", output)
	}
}

func TestInitializeFileWithoutPath(t *testing.T) {
	if err := Initialize(Config{FileEnabled: true}); err == nil {
		t.Error("expected error for file output without a path")
	}
}
