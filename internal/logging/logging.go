// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel  = "ORGCHAT_LOG_LEVEL"
	EnvLogFormat = "ORGCHAT_LOG_FORMAT"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options override the profile defaults. Empty fields keep the default.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime(opts Options) {
	Configure(ProfileRuntime, opts)
}

func ConfigureTests() {
	Configure(ProfileTest, Options{})
}

// Configure installs the global logger once per process. Later calls are
// ignored so tests in the same binary share one configuration.
func Configure(profile Profile, opts Options) {
	configureOnce.Do(func() {
		log.Logger = New(profile, opts)
	})
}

// New builds a logger without touching global state.
func New(profile Profile, opts Options) zerolog.Logger {
	level, format, timestamp := defaults(profile)
	if lvl, ok := ParseLevel(opts.Level); ok {
		level = lvl
	}
	if opts.Format != "" {
		format = strings.ToLower(strings.TrimSpace(opts.Format))
	}
	applyEnvOverrides(&level, &format)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    profile == ProfileTest,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(out).Level(level).With()
	if timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func defaults(profile Profile) (zerolog.Level, string, bool) {
	switch profile {
	case ProfileTest:
		return zerolog.DebugLevel, "console", false
	default:
		return zerolog.InfoLevel, "json", true
	}
}

func applyEnvOverrides(level *zerolog.Level, format *string) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		*level = lvl
	}
	if f := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); f != "" {
		*format = f
	}
}

// ParseLevel maps a configuration string onto a zerolog level. The second
// result is false for empty or unrecognised input.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
