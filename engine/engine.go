package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ar/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ar/engine/scene"
	"github.com/Carmen-Shannon/oxy-ar/engine/session"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/Carmen-Shannon/oxy-ar/engine/viewport"
	"github.com/Carmen-Shannon/oxy-ar/engine/window"
	"github.com/rs/zerolog"
)

// engine implements the Engine interface.
// Coordinates the tick, refresh and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel  chan struct{}
	quitOnce     sync.Once // Ensures quitChannel is only closed once
	shutdownOnce sync.Once

	window  window.Window
	host    viewport.Host
	tracker viewport.Tracker
	unsubs  []func()

	session  session.Controller
	scene    scene.Scene
	renderer renderer.Renderer

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	mu               *sync.Mutex
	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	renderCallback   func(deltaTime float32)
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	renderFailing    bool          // owned by the render goroutine

	log zerolog.Logger
}

// Engine is the main entry point of an AR application.
// It attaches a viewport tracker to the host container, feeds viewport changes to the
// tracking session, the scene camera and the renderer, and runs the tick and refresh
// loops. Every refresh iteration copies the current camera frame into the session's crop
// buffer and presents it.
type Engine interface {
	// Window returns the underlying window, or nil when running against a plain host.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Session returns the tracking session, or nil.
	//
	// Returns:
	//   - session.Controller: the session
	Session() session.Controller

	// Scene returns the AR scene, or nil.
	//
	// Returns:
	//   - scene.Scene: the scene
	Scene() scene.Scene

	// Profiler returns the profiler. Pass its PoseEvent method to the session as a pose
	// observer to include pose rates in the stats.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// Viewport returns the last published viewport size.
	//
	// Returns:
	//   - common.ViewportSize: the size
	//   - bool: false before the host reported a valid size
	Viewport() (common.ViewportSize, bool)

	// EnableProfiler enables periodic stats logging.
	EnableProfiler()

	// DisableProfiler disables periodic stats logging.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each refresh, after the crop
	// buffer has been updated.
	//
	// Parameters:
	//   - callback: function to call each refresh, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets the refresh rate cap in frames per second.
	// Pass 0 to uncap the refresh loop.
	//
	// Parameters:
	//   - fps: maximum refreshes per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the tick and refresh loops and blocks until the window closes or Quit
	// is called. The session is disposed before Run returns.
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Done is closed once Quit has been signalled.
	//
	// Returns:
	//   - <-chan struct{}: the quit channel
	Done() <-chan struct{}
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// When a host is present the viewport tracker is attached immediately, so the session
// and camera receive the initial size before NewEngine returns.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		mu:               &sync.Mutex{},
		engineTickRate:   time.Second / 60,
		renderFrameLimit: time.Second / 60,
		log:              logging.For("engine"),
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}
	if e.host == nil && e.window != nil {
		e.host = e.window
	}

	e.tracker = viewport.NewTracker(viewport.WithLogger(logging.For("viewport")))
	if e.scene != nil {
		e.unsubs = append(e.unsubs, e.tracker.Subscribe(func(size common.ViewportSize) {
			if cam := e.scene.Camera(); cam != nil {
				cam.SetAspect(float32(size.Aspect()))
			}
		}))
	}
	if e.renderer != nil {
		e.unsubs = append(e.unsubs, e.tracker.Subscribe(e.renderer.Resize))
	}
	if e.session != nil {
		e.unsubs = append(e.unsubs, e.tracker.Subscribe(e.session.Resize))
	}
	if err := e.tracker.Attach(e.host); err != nil {
		e.log.Warn().Err(err).Msg("no host container; viewport will not be tracked")
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Session() session.Controller {
	return e.session
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Viewport() (common.ViewportSize, bool) {
	return e.tracker.Size()
}

func (e *engine) Run() {
	e.running.Store(true)
	e.handle()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	} else {
		<-e.quitChannel
	}
	e.wg.Wait()
	e.running.Store(false)
	e.shutdown()
	if e.window != nil {
		if err := e.window.Close(); err != nil {
			e.log.Warn().Err(err).Msg("window close failed")
		}
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
	if e.window != nil {
		e.window.RequestClose()
	}
	if !e.running.Load() {
		e.shutdown()
	}
}

func (e *engine) Done() <-chan struct{} {
	return e.quitChannel
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// shutdown detaches from the host and disposes the session.
func (e *engine) shutdown() {
	e.shutdownOnce.Do(func() {
		e.tracker.Detach()
		for _, unsub := range e.unsubs {
			unsub()
		}
		if e.session != nil {
			e.session.Dispose()
		}
		if e.renderer != nil {
			e.renderer.Release()
		}
		e.log.Info().Msg("engine stopped")
	})
}

// handle launches the tick and refresh goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	e.mu.Lock()
	rate := e.engineTickRate
	e.mu.Unlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.mu.Lock()
			cb := e.tickCallback
			e.mu.Unlock()
			if cb != nil {
				cb(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
}

// handleRender runs the refresh loop in its own goroutine: crop buffer update, render
// callback, profiler. Recovers from panics to avoid crashing the process and signals
// quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("render goroutine recovered from panic")
			e.signalQuit()
			if e.window != nil {
				e.window.RequestClose()
			}
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if e.session != nil && (e.scene == nil || e.scene.Active()) {
			e.session.Tick()
		}
		if e.renderer != nil {
			e.present()
		}

		e.mu.Lock()
		cb := e.renderCallback
		limit := e.renderFrameLimit
		e.mu.Unlock()
		if cb != nil {
			cb(dt)
		}

		if e.profilingEnabled.Load() {
			e.profiler.Tick()
		}

		if limit > 0 {
			if remaining := limit - time.Since(lastRender); remaining > 0 {
				select {
				case <-e.quitChannel:
					return
				case <-time.After(remaining):
				}
			}
		}
	}
}

// present draws the crop buffer. Consecutive failures are logged once.
func (e *engine) present() {
	var buf tracking.FrameBuffer
	if e.session != nil {
		buf = e.session.Buffer()
	}
	err := e.renderer.Render(buf)
	if err != nil && !e.renderFailing {
		e.log.Warn().Err(err).Msg("render failed")
	}
	e.renderFailing = err != nil
}

// EnableProfiler enables periodic stats logging.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables periodic stats logging.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.mu.Lock()
		e.engineTickRate = newRate
		e.mu.Unlock()
		return
	}
	// Replace any pending update that the loop has not picked up yet.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each refresh.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

// SetRenderFrameLimit sets the refresh rate cap.
// Pass 0 to uncap the refresh loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
