// Package lifecycle owns the tracking engine instance: construction at the viewport
// size, marker bundle registration, warm-up, resize-triggered reinitialization and
// teardown. At most one engine handle is live at a time.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/camera"
	"github.com/Carmen-Shannon/oxy-ar/engine/frame"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/pose"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handle is one initialized tracking engine together with what was derived from it.
// MarkerGeometry and Offsets are immutable for the handle's lifetime.
type Handle struct {
	ID         string
	Size       common.ViewportSize
	Locator    string
	Geometry   tracking.MarkerGeometry
	Offsets    []common.Mat4
	Generation uint64
	Engine     tracking.Engine
}

// Lifecycle manages the single live tracking engine handle.
type Lifecycle interface {
	// Initialize builds a new engine handle sized to target. Any in-flight attempt is
	// cancelled and any live handle retired first, unless ctx is already done, in which
	// case nothing changes. The call waits for source to become
	// ready; it has no timeout of its own, so callers bound it through ctx.
	//
	// Parameters:
	//   - ctx: bounds the whole attempt
	//   - target: the viewport size, also the engine input size
	//   - source: the video source used for warm-up
	//
	// Returns:
	//   - *Handle: the live handle
	//   - error: common.ErrResourceUnavailable, *common.MarkerRegistrationError,
	//     *common.EngineOperationError for a failed construction, or the context error
	//     when the attempt was cancelled
	Initialize(ctx context.Context, target common.ViewportSize, source frame.Source) (*Handle, error)

	// Reinitialize tears down the live handle and initializes a new one. A ctx that is
	// already done leaves the lifecycle untouched.
	//
	// Parameters:
	//   - ctx: bounds the whole attempt
	//   - target: the new viewport size
	//   - source: the video source used for warm-up
	//
	// Returns:
	//   - *Handle: the live handle
	//   - error: as for Initialize
	Reinitialize(ctx context.Context, target common.ViewportSize, source frame.Source) (*Handle, error)

	// Teardown cancels any in-flight attempt, ends processing and disposes the live
	// handle. Pose events from the old engine are discarded from the moment Teardown
	// returns. Idempotent.
	Teardown()

	// Current returns the live handle, or nil.
	//
	// Returns:
	//   - *Handle: the live handle or nil
	Current() *Handle

	// Begin starts continuous processing of buf on h.
	//
	// Parameters:
	//   - h: the handle to start
	//   - buf: the frame buffer the engine polls
	//
	// Returns:
	//   - error: common.ErrStaleCallback if h is not live, or *common.EngineOperationError
	Begin(h *Handle, buf tracking.FrameBuffer) error

	// End stops continuous processing on h if it is still live.
	//
	// Parameters:
	//   - h: the handle to stop
	End(h *Handle)

	// DetectOnce runs a single feature detection on h.
	//
	// Parameters:
	//   - ctx: cancels the detection
	//   - h: the handle to use
	//   - img: the frame to analyze
	//
	// Returns:
	//   - []tracking.FeaturePoint: the detected features
	//   - error: common.ErrStaleCallback if h is or became stale, or the engine error
	DetectOnce(ctx context.Context, h *Handle, img image.Image) ([]tracking.FeaturePoint, error)

	// MatchOnce matches points against one marker on h.
	//
	// Parameters:
	//   - ctx: cancels the match
	//   - h: the handle to use
	//   - points: features from DetectOnce
	//   - markerIndex: the marker to match
	//
	// Returns:
	//   - tracking.MatchResult: the match result
	//   - error: common.ErrStaleCallback if h is or became stale, or the engine error
	MatchOnce(ctx context.Context, h *Handle, points []tracking.FeaturePoint, markerIndex int) (tracking.MatchResult, error)

	// SetPoseSink sets the function that receives pose events of the live handle.
	//
	// Parameters:
	//   - sink: the receiver, or nil to drop events
	SetPoseSink(sink func(tracking.PoseEvent))

	// SetMarkerLocator sets the bundle locator used by the next initialization.
	//
	// Parameters:
	//   - locator: the marker bundle locator
	SetMarkerLocator(locator string)

	// MarkerLocator returns the bundle locator used by the next initialization.
	//
	// Returns:
	//   - string: the locator
	MarkerLocator() string
}

type lifecycle struct {
	mu *sync.Mutex
	// deliverMu is held shared while a pose event is applied and exclusively while the
	// generation changes, so a retired engine can never be mid-delivery.
	deliverMu *sync.RWMutex
	// opMu serializes starting and stopping engine processing. It is never taken while
	// holding mu or deliverMu, since ending processing waits for in-flight deliveries.
	opMu *sync.Mutex

	factory tracking.Factory
	cam     camera.Camera
	options tracking.Options
	locator string

	generation atomic.Uint64
	attempt    uint64
	cancel     context.CancelFunc
	current    *Handle
	sink       func(tracking.PoseEvent)

	log zerolog.Logger
}

var _ Lifecycle = &lifecycle{}

// NewLifecycle creates a Lifecycle that builds engines with factory and hands their
// projection to cam.
//
// Parameters:
//   - factory: constructs tracking engines
//   - cam: the scene camera, may be nil
//   - options: functional options to configure the lifecycle
//
// Returns:
//   - Lifecycle: the newly created lifecycle
func NewLifecycle(factory tracking.Factory, cam camera.Camera, options ...LifecycleBuilderOption) Lifecycle {
	l := &lifecycle{
		mu:        &sync.Mutex{},
		deliverMu: &sync.RWMutex{},
		opMu:      &sync.Mutex{},
		factory:   factory,
		cam:       cam,
		options: tracking.Options{
			MaxSimultaneousTargets: 1,
			WarmupTolerance:        5,
			MissTolerance:          5,
			FilterMinCutoff:        0.001,
			FilterBeta:             1000,
		},
		log: logging.For("lifecycle"),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *lifecycle) Initialize(ctx context.Context, target common.ViewportSize, source frame.Source) (*Handle, error) {
	actx, attempt, gen, locator, err := l.beginAttempt(ctx)
	if err != nil {
		l.log.Debug().Err(err).Stringer("size", target).Msg("initialize skipped: attempt already cancelled")
		return nil, err
	}
	log := l.log.With().Uint64("generation", gen).Stringer("size", target).Logger()

	if source == nil {
		log.Debug().Msg("initialize skipped: no frame source")
		return nil, common.ErrResourceUnavailable
	}
	select {
	case <-source.Ready():
	case <-actx.Done():
		return nil, actx.Err()
	}
	if !target.Valid() {
		log.Debug().Msg("initialize skipped: invalid viewport")
		return nil, common.ErrResourceUnavailable
	}

	opts := l.options
	opts.InputWidth = target.Width
	opts.InputHeight = target.Height
	opts.OnPoseUpdate = func(ev tracking.PoseEvent) {
		l.deliver(gen, ev)
	}
	eng, err := l.factory(opts)
	if err != nil {
		return nil, &common.EngineOperationError{Op: "construct", Err: err}
	}
	if err := actx.Err(); err != nil {
		l.dispose(eng, log)
		return nil, err
	}

	geometry, err := eng.RegisterMarkerBundle(actx, locator)
	if err != nil {
		l.dispose(eng, log)
		if cerr := actx.Err(); cerr != nil {
			return nil, cerr
		}
		log.Error().Err(err).Str("locator", locator).Msg("marker registration failed")
		return nil, &common.MarkerRegistrationError{Locator: locator, Err: err}
	}
	if err := actx.Err(); err != nil {
		l.dispose(eng, log)
		return nil, err
	}

	h := &Handle{
		ID:         uuid.NewString(),
		Size:       target,
		Locator:    locator,
		Geometry:   geometry,
		Offsets:    pose.AnchorOffsets(geometry),
		Generation: gen,
		Engine:     eng,
	}
	log = log.With().Str("handle", h.ID).Logger()

	if img, ok := source.CurrentFrame(); ok {
		if warm := frame.CropInto(img, target); warm != nil {
			if err := eng.Warmup(warm); err != nil {
				log.Warn().Err(&common.EngineOperationError{Op: "warmup", Err: err}).Msg("continuing without warm-up")
			}
		}
	} else {
		log.Debug().Msg("no frame available for warm-up")
	}

	if err := l.commit(actx, attempt, h); err != nil {
		l.dispose(eng, log)
		return nil, err
	}
	log.Info().Int("markers", len(geometry)).Msg("tracking engine ready")
	return h, nil
}

func (l *lifecycle) Reinitialize(ctx context.Context, target common.ViewportSize, source frame.Source) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.Teardown()
	return l.Initialize(ctx, target, source)
}

func (l *lifecycle) Teardown() {
	h := l.retire()
	if h == nil {
		return
	}
	l.shutdown(h)
	l.log.Info().Str("handle", h.ID).Msg("tracking engine torn down")
}

func (l *lifecycle) Current() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *lifecycle) Begin(h *Handle, buf tracking.FrameBuffer) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if !l.live(h) {
		return common.ErrStaleCallback
	}
	if err := h.Engine.BeginContinuousProcessing(buf); err != nil {
		return &common.EngineOperationError{Op: "begin", Err: err}
	}
	return nil
}

func (l *lifecycle) End(h *Handle) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if !l.live(h) {
		return
	}
	h.Engine.EndContinuousProcessing()
}

func (l *lifecycle) DetectOnce(ctx context.Context, h *Handle, img image.Image) ([]tracking.FeaturePoint, error) {
	if !l.live(h) {
		return nil, common.ErrStaleCallback
	}
	points, err := h.Engine.DetectOnce(ctx, img)
	if !l.live(h) {
		return nil, common.ErrStaleCallback
	}
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return points, nil
}

func (l *lifecycle) MatchOnce(ctx context.Context, h *Handle, points []tracking.FeaturePoint, markerIndex int) (tracking.MatchResult, error) {
	if !l.live(h) {
		return tracking.MatchResult{}, common.ErrStaleCallback
	}
	res, err := h.Engine.MatchOnce(ctx, points, markerIndex)
	if !l.live(h) {
		return tracking.MatchResult{}, common.ErrStaleCallback
	}
	if err != nil {
		return tracking.MatchResult{}, fmt.Errorf("match marker %d: %w", markerIndex, err)
	}
	return res, nil
}

func (l *lifecycle) SetPoseSink(sink func(tracking.PoseEvent)) {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()
	l.sink = sink
}

func (l *lifecycle) SetMarkerLocator(locator string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locator = locator
}

func (l *lifecycle) MarkerLocator() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locator
}

// beginAttempt cancels the previous attempt, retires the live handle and opens a new
// generation, all in one step. An already cancelled ctx changes nothing, so a
// superseded caller can never cancel or retire the work of a newer one.
func (l *lifecycle) beginAttempt(ctx context.Context) (context.Context, uint64, uint64, string, error) {
	l.deliverMu.Lock()
	l.mu.Lock()
	if err := ctx.Err(); err != nil {
		l.mu.Unlock()
		l.deliverMu.Unlock()
		return nil, 0, 0, "", err
	}
	if l.cancel != nil {
		l.cancel()
	}
	actx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.attempt++
	attempt := l.attempt
	old := l.current
	l.current = nil
	gen := l.generation.Add(1)
	locator := l.locator
	l.mu.Unlock()
	l.deliverMu.Unlock()

	if old != nil {
		l.shutdown(old)
	}
	return actx, attempt, gen, locator, nil
}

// retire cancels the in-flight attempt, empties the slot and bumps the generation. The
// returned handle must be shut down by the caller.
func (l *lifecycle) retire() *Handle {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.attempt++
	h := l.current
	l.current = nil
	l.generation.Add(1)
	return h
}

// shutdown ends processing on a retired handle and disposes its engine.
func (l *lifecycle) shutdown(h *Handle) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	h.Engine.EndContinuousProcessing()
	l.dispose(h.Engine, l.log.With().Str("handle", h.ID).Logger())
}

// commit stores h in the slot if its attempt is still the latest and has not been
// cancelled.
func (l *lifecycle) commit(actx context.Context, attempt uint64, h *Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := actx.Err(); err != nil {
		return err
	}
	if attempt != l.attempt || h.Generation != l.generation.Load() {
		return context.Canceled
	}
	if l.cam != nil {
		l.cam.SetProjectionMatrix(common.FromRowMajor(h.Engine.ProjectionMatrix()))
	}
	l.current = h
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	return nil
}

func (l *lifecycle) deliver(gen uint64, ev tracking.PoseEvent) {
	l.deliverMu.RLock()
	defer l.deliverMu.RUnlock()
	if gen != l.generation.Load() {
		l.log.Debug().Err(common.ErrStaleCallback).Uint64("generation", gen).Int("marker", ev.MarkerIndex).Msg("pose event discarded")
		return
	}
	if l.sink != nil {
		l.sink(ev)
	}
}

func (l *lifecycle) live(h *Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return h != nil && h == l.current && h.Generation == l.generation.Load()
}

func (l *lifecycle) dispose(eng tracking.Engine, log zerolog.Logger) {
	if err := eng.Dispose(); err != nil && !errors.Is(err, common.ErrDisposed) {
		log.Warn().Err(err).Msg("engine dispose failed")
	}
}
