// Package logging owns the process-wide zerolog base logger. Components derive
// child loggers with For so every line carries a component field.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "OXYAR_LOG_LEVEL"
	EnvLogTimestamp = "OXYAR_LOG_TIMESTAMP"
	EnvLogNoColor   = "OXYAR_LOG_NOCOLOR"
)

// Profile selects the default output settings.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger configuration.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Output    io.Writer
}

var (
	configureOnce sync.Once
	base          atomic.Pointer[zerolog.Logger]
)

func init() {
	l := zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	base.Store(&l)
}

// ConfigureRuntime applies the runtime profile once per process.
func ConfigureRuntime() {
	Configure(ProfileRuntime, "")
}

// ConfigureTests applies the test profile once per process.
func ConfigureTests() {
	Configure(ProfileTest, "")
}

// Configure builds the base logger for the profile. A non-empty level overrides the
// profile default; environment variables override both. Only the first call has any effect.
//
// Parameters:
//   - profile: the default settings to start from
//   - level: optional level name ("trace", "debug", "info", "warn", "error")
func Configure(profile Profile, level string) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		if lvl, ok := ParseLevel(level); ok {
			cfg.Level = lvl
		}
		applyEnvOverrides(&cfg)
		Set(New(cfg))
	})
}

// New builds a console logger from cfg.
//
// Parameters:
//   - cfg: the logger configuration
//
// Returns:
//   - zerolog.Logger: the configured logger
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	cw := zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.TimeOnly}
	if !cfg.Timestamp {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return zerolog.New(cw).Level(cfg.Level).With().Timestamp().Logger()
}

// Set replaces the base logger. Loggers already derived with For keep their old sink.
func Set(l zerolog.Logger) {
	base.Store(&l)
}

// Base returns the current base logger.
func Base() zerolog.Logger {
	return *base.Load()
}

// For returns a child logger tagged with the component name.
//
// Parameters:
//   - component: short component name, e.g. "lifecycle"
//
// Returns:
//   - zerolog.Logger: the tagged logger
func For(component string) zerolog.Logger {
	return base.Load().With().Str("component", component).Logger()
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel maps a level name to a zerolog level. Empty or unknown names report false.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
	case "off", "disabled":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
