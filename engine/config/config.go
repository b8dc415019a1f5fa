// Package config loads the TOML configuration of an AR tracking application.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
)

// Config is the resolved application configuration.
type Config struct {
	// MarkerBundle locates the compiled marker bundle. Relative paths are resolved
	// against the config file's directory.
	MarkerBundle string
	AutoStart    bool
	DebugOverlay bool

	Engine  EngineConfig
	Camera  CameraConfig
	Display DisplayConfig
	Log     LogConfig
}

// EngineConfig holds the tracking engine tunables.
type EngineConfig struct {
	MaxSimultaneousTargets int
	WarmupTolerance        int
	MissTolerance          int
	FilterMinCutoff        float64
	FilterBeta             float64
	DebugMode              bool
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Device int
}

// DisplayConfig configures the host window and refresh loop.
type DisplayConfig struct {
	Title            string
	Width            int
	Height           int
	TickRate         float64
	RenderFrameLimit float64
	Profiling        bool
}

// LogConfig configures the base logger.
type LogConfig struct {
	Level string
}

type fileConfig struct {
	MarkerBundle string `toml:"marker_bundle"`
	AutoStart    bool   `toml:"auto_start"`
	DebugOverlay bool   `toml:"debug_overlay"`

	Engine struct {
		MaxSimultaneousTargets int     `toml:"max_simultaneous_targets"`
		WarmupTolerance        int     `toml:"warmup_tolerance"`
		MissTolerance          int     `toml:"miss_tolerance"`
		FilterMinCutoff        float64 `toml:"filter_min_cutoff"`
		FilterBeta             float64 `toml:"filter_beta"`
		DebugMode              bool    `toml:"debug_mode"`
	} `toml:"engine"`

	Camera struct {
		Device int `toml:"device"`
	} `toml:"camera"`

	Display struct {
		Title            string  `toml:"title"`
		Width            int     `toml:"width"`
		Height           int     `toml:"height"`
		TickRate         float64 `toml:"tick_rate"`
		RenderFrameLimit float64 `toml:"render_frame_limit"`
		Profiling        bool    `toml:"profiling"`
	} `toml:"display"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Default returns the built-in configuration.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		AutoStart:    true,
		DebugOverlay: true,
		Engine: EngineConfig{
			MaxSimultaneousTargets: 1,
			WarmupTolerance:        5,
			MissTolerance:          5,
			FilterMinCutoff:        0.001,
			FilterBeta:             1000,
			DebugMode:              true,
		},
		Display: DisplayConfig{
			Title:    "oxy-ar",
			Width:    1280,
			Height:   720,
			TickRate: 60,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a TOML file on top of Default and validates the result.
//
// Parameters:
//   - path: the config file
//
// Returns:
//   - Config: the resolved configuration
//   - error: error if the file cannot be decoded or a value is out of range
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.For("config").Warn().Strs("keys", keys).Str("path", path).Msg("unknown config keys ignored")
	}

	def := Default()
	cfg := Config{
		MarkerBundle: strings.TrimSpace(raw.MarkerBundle),
		AutoStart:    def.AutoStart,
		DebugOverlay: def.DebugOverlay,
		Engine: EngineConfig{
			MaxSimultaneousTargets: common.Coalesce(raw.Engine.MaxSimultaneousTargets, def.Engine.MaxSimultaneousTargets),
			WarmupTolerance:        common.Coalesce(raw.Engine.WarmupTolerance, def.Engine.WarmupTolerance),
			MissTolerance:          common.Coalesce(raw.Engine.MissTolerance, def.Engine.MissTolerance),
			FilterMinCutoff:        common.Coalesce(raw.Engine.FilterMinCutoff, def.Engine.FilterMinCutoff),
			FilterBeta:             common.Coalesce(raw.Engine.FilterBeta, def.Engine.FilterBeta),
			DebugMode:              def.Engine.DebugMode,
		},
		Camera: CameraConfig{Device: raw.Camera.Device},
		Display: DisplayConfig{
			Title:            common.Coalesce(strings.TrimSpace(raw.Display.Title), def.Display.Title),
			Width:            common.Coalesce(raw.Display.Width, def.Display.Width),
			Height:           common.Coalesce(raw.Display.Height, def.Display.Height),
			TickRate:         common.Coalesce(raw.Display.TickRate, def.Display.TickRate),
			RenderFrameLimit: raw.Display.RenderFrameLimit,
			Profiling:        raw.Display.Profiling,
		},
		Log: LogConfig{Level: common.Coalesce(strings.TrimSpace(raw.Log.Level), def.Log.Level)},
	}
	if meta.IsDefined("auto_start") {
		cfg.AutoStart = raw.AutoStart
	}
	if meta.IsDefined("debug_overlay") {
		cfg.DebugOverlay = raw.DebugOverlay
	}
	if meta.IsDefined("engine", "debug_mode") {
		cfg.Engine.DebugMode = raw.Engine.DebugMode
	}
	if cfg.MarkerBundle != "" && !filepath.IsAbs(cfg.MarkerBundle) {
		cfg.MarkerBundle = filepath.Join(filepath.Dir(path), cfg.MarkerBundle)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every out-of-range value.
//
// Returns:
//   - error: joined validation errors, or nil
func (c Config) Validate() error {
	var errs []error
	if c.MarkerBundle == "" {
		errs = append(errs, errors.New("marker_bundle is required"))
	}
	if c.Engine.MaxSimultaneousTargets < 1 {
		errs = append(errs, fmt.Errorf("engine.max_simultaneous_targets must be >= 1, got %d", c.Engine.MaxSimultaneousTargets))
	}
	if c.Engine.WarmupTolerance < 1 {
		errs = append(errs, fmt.Errorf("engine.warmup_tolerance must be >= 1, got %d", c.Engine.WarmupTolerance))
	}
	if c.Engine.MissTolerance < 1 {
		errs = append(errs, fmt.Errorf("engine.miss_tolerance must be >= 1, got %d", c.Engine.MissTolerance))
	}
	if c.Engine.FilterMinCutoff <= 0 {
		errs = append(errs, fmt.Errorf("engine.filter_min_cutoff must be > 0, got %g", c.Engine.FilterMinCutoff))
	}
	if c.Engine.FilterBeta < 0 {
		errs = append(errs, fmt.Errorf("engine.filter_beta must be >= 0, got %g", c.Engine.FilterBeta))
	}
	if c.Camera.Device < 0 {
		errs = append(errs, fmt.Errorf("camera.device must be >= 0, got %d", c.Camera.Device))
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		errs = append(errs, fmt.Errorf("display size must be positive, got %dx%d", c.Display.Width, c.Display.Height))
	}
	if c.Display.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("display.tick_rate must be > 0, got %g", c.Display.TickRate))
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	return errors.Join(errs...)
}

// TrackingOptions maps the engine section onto tracking engine options. The input size
// and pose callback are left for the lifecycle to fill in.
//
// Returns:
//   - tracking.Options: the engine options template
func (c Config) TrackingOptions() tracking.Options {
	return tracking.Options{
		MaxSimultaneousTargets: c.Engine.MaxSimultaneousTargets,
		DebugMode:              c.Engine.DebugMode,
		WarmupTolerance:        c.Engine.WarmupTolerance,
		MissTolerance:          c.Engine.MissTolerance,
		FilterMinCutoff:        c.Engine.FilterMinCutoff,
		FilterBeta:             c.Engine.FilterBeta,
	}
}
