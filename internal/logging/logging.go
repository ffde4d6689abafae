// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string    // "json", "console", or "auto"
	Level     string    // "debug", "info", "warn", "error"
	Component string    // optional component name
	Output    io.Writer // defaults to os.Stderr
}

var (
	mu sync.Mutex

	isTerminalFn = term.IsTerminal
)

// Init replaces the global logger and level. It is safe to call again once
// configuration is known.
func Init(cfg Config) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	builder := zerolog.New(newWriter(cfg.Format, out)).With().Timestamp()
	if component := strings.TrimSpace(cfg.Component); component != "" {
		builder = builder.Str("component", component)
	}
	log.Logger = builder.Logger()
	return log.Logger
}

// SetLevel changes the global level at runtime and reports whether it moved.
func SetLevel(level string) (zerolog.Level, bool) {
	mu.Lock()
	defer mu.Unlock()

	next := parseLevel(level)
	if next == zerolog.GlobalLevel() {
		return next, false
	}
	zerolog.SetGlobalLevel(next)
	return next, true
}

// ValidLevel reports whether level names a known zerolog level.
func ValidLevel(level string) bool {
	_, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]
	return ok
}

// ValidFormat reports whether format is one Init understands.
func ValidFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto", "json", "console":
		return true
	}
	return false
}

var levelNames = map[string]zerolog.Level{
	"":         zerolog.InfoLevel,
	"info":     zerolog.InfoLevel,
	"debug":    zerolog.DebugLevel,
	"trace":    zerolog.TraceLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"panic":    zerolog.PanicLevel,
	"disabled": zerolog.Disabled,
}

func parseLevel(level string) zerolog.Level {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if lvl, ok := levelNames[normalized]; ok {
		return lvl
	}
	fmt.Fprintf(os.Stderr, "logging: invalid level %q; using %q\n", normalized, "info")
	return zerolog.InfoLevel
}

// newWriter picks the console writer for "console", and for "auto" when out
// is a terminal. Everything else gets JSON lines.
func newWriter(format string, out io.Writer) io.Writer {
	format = strings.ToLower(strings.TrimSpace(format))
	if !ValidFormat(format) {
		fmt.Fprintf(os.Stderr, "logging: invalid format %q; using %q\n", format, "json")
		return out
	}
	if format == "console" || (format != "json" && isTerminal(out)) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok || file == nil {
		return false
	}
	return isTerminalFn(int(file.Fd()))
}
