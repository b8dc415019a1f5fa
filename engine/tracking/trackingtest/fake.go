// Package trackingtest provides a scriptable tracking.Engine for tests.
package trackingtest

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
)

// Engine is a fake tracking engine. Exported fields configure behavior and must be set
// before the engine is handed to the code under test; counters are read through methods.
type Engine struct {
	Opts tracking.Options

	Geometry    tracking.MarkerGeometry
	RegisterErr error
	// RegisterGate, when non-nil, blocks RegisterMarkerBundle until it is closed or ctx ends.
	RegisterGate chan struct{}
	WarmupErr    error
	BeginErr     error
	Projection   [16]float32
	Points       []tracking.FeaturePoint
	Match        tracking.MatchResult
	// EndHook, when non-nil, runs at the end of EndContinuousProcessing outside the
	// engine lock, standing in for waiting on the engine's worker.
	EndHook func()

	mu         sync.Mutex
	locators   []string
	warmups    int
	begins     int
	ends       int
	disposes   int
	processing bool
	buffer     tracking.FrameBuffer
	lastFrame  image.Image
}

var _ tracking.Engine = &Engine{}

// Factory records every engine it builds. Configure, when set, prepares each new engine.
type Factory struct {
	Configure func(e *Engine)
	Err       error

	mu      sync.Mutex
	engines []*Engine
}

// New implements tracking.Factory.
func (f *Factory) New(opts tracking.Options) (tracking.Engine, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	e := &Engine{
		Opts:       opts,
		Geometry:   tracking.MarkerGeometry{{Width: 1, Height: 1}},
		Projection: [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1},
	}
	if f.Configure != nil {
		f.Configure(e)
	}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e, nil
}

// Engines returns every engine built so far, oldest first.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Engine(nil), f.engines...)
}

// Last returns the most recently built engine, or nil.
func (f *Factory) Last() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// InputSize returns the input size the engine was built with.
func (e *Engine) InputSize() (int, int) {
	return e.Opts.InputWidth, e.Opts.InputHeight
}

// RegisterMarkerBundle records locator and returns Geometry, or RegisterErr. It waits
// on RegisterGate when one is set.
func (e *Engine) RegisterMarkerBundle(ctx context.Context, locator string) (tracking.MarkerGeometry, error) {
	e.mu.Lock()
	e.locators = append(e.locators, locator)
	e.mu.Unlock()
	if e.RegisterGate != nil {
		select {
		case <-e.RegisterGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.RegisterErr != nil {
		return nil, e.RegisterErr
	}
	return e.Geometry, nil
}

// Warmup counts the call, keeps frame and returns WarmupErr.
func (e *Engine) Warmup(frame image.Image) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warmups++
	e.lastFrame = frame
	return e.WarmupErr
}

// BeginContinuousProcessing counts the call and, unless BeginErr is set, marks the
// engine processing buf.
func (e *Engine) BeginContinuousProcessing(buf tracking.FrameBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.begins++
	if e.BeginErr != nil {
		return e.BeginErr
	}
	e.processing = true
	e.buffer = buf
	return nil
}

// EndContinuousProcessing stops processing, then runs EndHook.
func (e *Engine) EndContinuousProcessing() {
	e.mu.Lock()
	e.ends++
	e.processing = false
	e.mu.Unlock()
	if e.EndHook != nil {
		e.EndHook()
	}
}

// DetectOnce keeps frame and returns Points.
func (e *Engine) DetectOnce(ctx context.Context, frame image.Image) ([]tracking.FeaturePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	e.mu.Lock()
	e.lastFrame = frame
	e.mu.Unlock()
	return e.Points, nil
}

// MatchOnce returns Match tagged with markerIndex.
func (e *Engine) MatchOnce(ctx context.Context, points []tracking.FeaturePoint, markerIndex int) (tracking.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return tracking.MatchResult{}, err
	}
	m := e.Match
	m.MarkerIndex = markerIndex
	return m, nil
}

// ProjectionMatrix returns Projection.
func (e *Engine) ProjectionMatrix() [16]float32 {
	return e.Projection
}

// Dispose counts the call and stops processing. Repeated calls succeed.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposes++
	e.processing = false
	return nil
}

// Emit delivers a pose event through the engine's registered callback, as the engine's
// own worker would.
func (e *Engine) Emit(ev tracking.PoseEvent) {
	if e.Opts.OnPoseUpdate != nil {
		e.Opts.OnPoseUpdate(ev)
	}
}

// EmitPose is Emit for a found marker with the given row-major world matrix.
func (e *Engine) EmitPose(index int, world [16]float32) {
	e.Emit(tracking.PoseEvent{MarkerIndex: index, WorldTransform: &world})
}

// EmitLost is Emit for a lost marker.
func (e *Engine) EmitLost(index int) {
	e.Emit(tracking.PoseEvent{MarkerIndex: index})
}

// Locators returns every locator passed to RegisterMarkerBundle.
func (e *Engine) Locators() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.locators...)
}

// Warmups returns how many times Warmup was called.
func (e *Engine) Warmups() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warmups
}

// Begins returns how many times BeginContinuousProcessing was called.
func (e *Engine) Begins() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.begins
}

// Ends returns how many times EndContinuousProcessing was called.
func (e *Engine) Ends() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ends
}

// Disposes returns how many times Dispose was called.
func (e *Engine) Disposes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposes
}

// Processing reports whether continuous processing is running.
func (e *Engine) Processing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processing
}

// Buffer returns the frame buffer passed to the last BeginContinuousProcessing call.
func (e *Engine) Buffer() tracking.FrameBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer
}

// LastFrame returns the frame passed to the last Warmup or DetectOnce call.
func (e *Engine) LastFrame() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrame
}
