package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-ar/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ar/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ar/engine/scene"
	"github.com/Carmen-Shannon/oxy-ar/engine/session"
	"github.com/Carmen-Shannon/oxy-ar/engine/viewport"
	"github.com/Carmen-Shannon/oxy-ar/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables periodic stats logging.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithProfiler sets the profiler instance, e.g. one already handed to the session as
// pose observer.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets the window hosting the AR view. The window also becomes the
// viewport host unless WithHost is given.
//
// Parameters:
//   - w: a spawned Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithHost sets the container whose size drives the viewport, for running without a
// window (offscreen rendering, tests).
//
// Parameters:
//   - h: the host container
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithHost(h viewport.Host) EngineBuilderOption {
	return func(e *engine) {
		e.host = h
	}
}

// WithSession sets the tracking session fed by the viewport and refresh loop.
//
// Parameters:
//   - s: the session
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSession(s session.Controller) EngineBuilderOption {
	return func(e *engine) {
		e.session = s
	}
}

// WithScene sets the AR scene whose camera follows the viewport aspect ratio.
// The crop buffer is only refreshed while the scene is active.
//
// Parameters:
//   - s: the Scene
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithRenderer sets the background renderer that presents the crop buffer each refresh.
// It follows the viewport size and is released when the engine shuts down.
//
// Parameters:
//   - r: the Renderer
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithRenderFrameLimit sets the refresh rate cap in frames per second.
// Pass 0 to uncap the refresh loop. Defaults to 60.
//
// Parameters:
//   - fps: maximum refreshes per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
