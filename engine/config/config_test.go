package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oxy-ar.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `marker_bundle = "markers/bundle.toml"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.MarkerBundle = filepath.Join(filepath.Dir(path), "markers", "bundle.toml")
	assert.Equal(t, want, cfg)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
marker_bundle = "/srv/markers/card.png"
auto_start = false
debug_overlay = false

[engine]
max_simultaneous_targets = 2
warmup_tolerance = 3
miss_tolerance = 8
filter_min_cutoff = 0.5
filter_beta = 20
debug_mode = false

[camera]
device = 1

[display]
title = "  card demo  "
width = 640
height = 480
tick_rate = 30
render_frame_limit = 24
profiling = true

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		MarkerBundle: "/srv/markers/card.png",
		AutoStart:    false,
		DebugOverlay: false,
		Engine: EngineConfig{
			MaxSimultaneousTargets: 2,
			WarmupTolerance:        3,
			MissTolerance:          8,
			FilterMinCutoff:        0.5,
			FilterBeta:             20,
			DebugMode:              false,
		},
		Camera: CameraConfig{Device: 1},
		Display: DisplayConfig{
			Title:            "card demo",
			Width:            640,
			Height:           480,
			TickRate:         30,
			RenderFrameLimit: 24,
			Profiling:        true,
		},
		Log: LogConfig{Level: "debug"},
	}, cfg)

	opts := cfg.TrackingOptions()
	assert.Equal(t, 2, opts.MaxSimultaneousTargets)
	assert.Equal(t, 3, opts.WarmupTolerance)
	assert.Equal(t, 8, opts.MissTolerance)
	assert.Equal(t, 0.5, opts.FilterMinCutoff)
	assert.Equal(t, 20.0, opts.FilterBeta)
	assert.False(t, opts.DebugMode)
	assert.Zero(t, opts.InputWidth)
	assert.Nil(t, opts.OnPoseUpdate)
}

func TestLoadUnknownKeysAreIgnored(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
marker_bundle = "bundle.toml"
colour = "teal"

[engine]
turbo = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr []string
	}{
		{
			name:    "missing bundle",
			body:    `auto_start = true`,
			wantErr: []string{"marker_bundle is required"},
		},
		{
			name: "out of range",
			body: `
marker_bundle = "b.toml"
[engine]
max_simultaneous_targets = -1
filter_beta = -2
[camera]
device = -1
[log]
level = "chatty"
`,
			wantErr: []string{
				"engine.max_simultaneous_targets must be >= 1",
				"engine.filter_beta must be >= 0",
				"camera.device must be >= 0",
				`log.level "chatty"`,
			},
		},
		{
			name:    "malformed",
			body:    `marker_bundle = `,
			wantErr: []string{"load config"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultValidatesWithBundle(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.Error(t, cfg.Validate())
	cfg.MarkerBundle = "bundle.toml"
	assert.NoError(t, cfg.Validate())
}
