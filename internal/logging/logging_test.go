package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func resetLoggingState(t *testing.T) {
	t.Helper()
	origLogger := log.Logger
	origLevel := zerolog.GlobalLevel()
	origIsTerminal := isTerminalFn
	t.Cleanup(func() {
		log.Logger = origLogger
		zerolog.SetGlobalLevel(origLevel)
		isTerminalFn = origIsTerminal
	})
}

func readJSONLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	line := strings.TrimSpace(buf.String())
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if line == "" {
		t.Fatalf("expected log output, got empty string")
	}

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("failed to unmarshal log line %q: %v", line, err)
	}
	return event
}

// captureStderr swaps os.Stderr for a pipe while fn runs and returns what
// was written to it.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	origStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stderr = w
	defer func() {
		os.Stderr = origStderr
		_ = r.Close()
	}()

	fn()
	_ = w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read pipe: %v", err)
	}
	return string(out)
}

func TestInitJSONSetsLevelAndComponent(t *testing.T) {
	resetLoggingState(t)

	var buf bytes.Buffer
	Init(Config{Format: "json", Level: "debug", Component: "license-watcher", Output: &buf})
	log.Debug().Str("state", "ACTIVE").Msg("License is active.")

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected global level debug, got %s", zerolog.GlobalLevel())
	}

	event := readJSONLine(t, &buf)
	if event["component"] != "license-watcher" {
		t.Fatalf("expected component field, got %v", event["component"])
	}
	if event["message"] != "License is active." || event["state"] != "ACTIVE" {
		t.Fatalf("unexpected event %v", event)
	}
	if _, ok := event["time"]; !ok {
		t.Fatal("expected a timestamp")
	}
}

func TestInitWithoutComponentOmitsField(t *testing.T) {
	resetLoggingState(t)

	var buf bytes.Buffer
	Init(Config{Format: "json", Output: &buf})
	log.Warn().Msg("no component")

	event := readJSONLine(t, &buf)
	if _, ok := event["component"]; ok {
		t.Fatalf("expected no component field, got %v", event["component"])
	}
}

func TestInitLevelFiltersOutput(t *testing.T) {
	resetLoggingState(t)

	var buf bytes.Buffer
	Init(Config{Format: "json", Level: "warn", Output: &buf})
	log.Info().Msg("License trust anchor loaded")

	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn, got %q", buf.String())
	}
}

func TestInitFormats(t *testing.T) {
	resetLoggingState(t)

	tests := []struct {
		name     string
		format   string
		terminal bool
		console  bool
	}{
		{name: "console", format: "console", console: true},
		{name: "json", format: "json", terminal: true},
		{name: "auto off terminal", format: "auto"},
		{name: "auto on terminal", format: "auto", terminal: true},
		{name: "empty means auto", format: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isTerminalFn = func(int) bool { return tt.terminal }

			// Only *os.File outputs can be terminals.
			f, err := os.CreateTemp(t.TempDir(), "log")
			if err != nil {
				t.Fatalf("create temp file: %v", err)
			}
			defer f.Close()

			w := newWriter(tt.format, f)
			_, isConsole := w.(zerolog.ConsoleWriter)
			wantConsole := tt.console || (tt.terminal && tt.format != "json")
			if isConsole != wantConsole {
				t.Fatalf("format %q terminal=%v: console=%v, want %v", tt.format, tt.terminal, isConsole, wantConsole)
			}
		})
	}
}

func TestNewWriterIgnoresTerminalForNonFiles(t *testing.T) {
	resetLoggingState(t)
	isTerminalFn = func(int) bool { return true }

	var buf bytes.Buffer
	if _, ok := newWriter("auto", &buf).(zerolog.ConsoleWriter); ok {
		t.Fatal("expected JSON writer for a buffer")
	}
}

func TestInvalidFormatFallsBackToJSON(t *testing.T) {
	resetLoggingState(t)

	var buf bytes.Buffer
	stderr := captureStderr(t, func() {
		Init(Config{Format: "xml", Output: &buf})
		log.Info().Msg("still json")
	})

	if !strings.Contains(stderr, `invalid format "xml"`) {
		t.Fatalf("expected format warning, got %q", stderr)
	}
	if readJSONLine(t, &buf)["message"] != "still json" {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"INFO":     zerolog.InfoLevel,
		" debug ":  zerolog.DebugLevel,
		"trace":    zerolog.TraceLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}

	stderr := captureStderr(t, func() {
		if got := parseLevel("loud"); got != zerolog.InfoLevel {
			t.Errorf("expected info fallback, got %s", got)
		}
	})
	if !strings.Contains(stderr, `invalid level "loud"`) {
		t.Fatalf("expected level warning, got %q", stderr)
	}
}

func TestValidLevelAndFormat(t *testing.T) {
	if !ValidLevel("Warn") {
		t.Fatal("expected Warn to be valid")
	}
	if ValidLevel("verbose") {
		t.Fatal("expected verbose to be invalid")
	}
	if !ValidFormat(" JSON ") || !ValidFormat("") {
		t.Fatal("expected json and empty formats to be valid")
	}
	if ValidFormat("xml") {
		t.Fatal("expected xml to be invalid")
	}
}

func TestSetLevel(t *testing.T) {
	resetLoggingState(t)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	level, changed := SetLevel("debug")
	if !changed || level != zerolog.DebugLevel {
		t.Fatalf("expected change to debug, got %s changed=%v", level, changed)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected global level debug, got %s", zerolog.GlobalLevel())
	}

	if _, changed := SetLevel("DEBUG"); changed {
		t.Fatal("expected no change when level is already debug")
	}
}

func TestInitThreadSafety(t *testing.T) {
	resetLoggingState(t)

	var wg sync.WaitGroup
	configs := []Config{
		{Format: "json", Level: "debug", Component: "license-watcher", Output: io.Discard},
		{Format: "json", Level: "warn", Component: "verify", Output: io.Discard},
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			Init(configs[idx%len(configs)])
			SetLevel("info")
		}(i)
	}
	wg.Wait()

	if zerolog.GlobalLevel() == zerolog.NoLevel {
		t.Fatal("expected a configured global level")
	}
}
