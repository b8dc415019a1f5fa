// Package session is the tracking state machine tying together the viewport, the crop
// buffer, the engine lifecycle and the pose composer.
//
//	Idle --Start--> Starting --ok--> Active --Stop--> Stopping --> Stopped
//	  ^                |  \                                          |
//	  +----failure-----+   +--resize/locator: restart       Start ---+
//
// Any state moves to Disposed on Dispose.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/frame"
	"github.com/Carmen-Shannon/oxy-ar/engine/lifecycle"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/overlay"
	"github.com/Carmen-Shannon/oxy-ar/engine/pose"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotReady is returned by DebugDetectOnce outside the Active and Stopped states.
var ErrNotReady = errors.New("tracking session not ready")

// DebugResult is the outcome of a single-shot detect and match.
type DebugResult struct {
	// Frame is the crop buffer snapshot the detection ran on.
	Frame image.Image
	// Points are the detected features in Frame's coordinates.
	Points []tracking.FeaturePoint
	// Match is the match against the requested marker.
	Match tracking.MatchResult
	// Overlay is Frame with the features drawn on it; nil without an overlay renderer.
	Overlay *image.RGBA
}

// Controller drives one tracking session.
type Controller interface {
	// ID returns the session identifier used in logs.
	ID() string

	// State returns the current state.
	State() State

	// IsTracking reports whether the session is Active.
	IsTracking() bool

	// TrackedMarkers returns the indices of the markers currently anchoring the scene.
	TrackedMarkers() []int

	// LastError returns the error of the most recent failed start, or nil.
	LastError() error

	// Start begins tracking. From Idle, or from Stopped when the viewport or locator
	// changed, an engine initialization runs in the background and the session is
	// Starting until it completes. From Stopped with an unchanged handle, processing
	// resumes immediately. No-op when Starting or Active.
	//
	// Returns:
	//   - error: common.ErrDisposed after Dispose, common.ErrResourceUnavailable while
	//     no valid viewport size is known
	Start() error

	// Stop ends tracking. The tracked set is always cleared and the anchor hidden. From
	// Active the session passes through Stopping to Stopped and keeps its engine; from
	// Starting the attempt is cancelled and the session lands in Stopped.
	Stop()

	// Toggle stops an Active or Starting session and starts any other.
	//
	// Returns:
	//   - error: as for Start
	Toggle() error

	// Dispose tears everything down and moves to the terminal Disposed state. Idempotent.
	Dispose()

	// Buffer returns the crop buffer, which also serves as the camera background.
	Buffer() *frame.CropBuffer

	// Tick copies the current camera frame into the crop buffer. Call once per display
	// refresh; runs in every state but Disposed.
	Tick()

	// Resize reports a new viewport size. Restarts an in-flight or active session at
	// the new size; a Stopped session reinitializes on its next Start.
	//
	// Parameters:
	//   - size: the new viewport size
	Resize(size common.ViewportSize)

	// SetMarkerLocator changes the marker bundle. Restarts an in-flight or active session.
	//
	// Parameters:
	//   - locator: the new bundle locator
	SetMarkerLocator(locator string)

	// DebugDetectOnce runs one detection on the current crop buffer, renders the overlay
	// when configured, and matches against one marker. It never touches the tracked set
	// or the anchor.
	//
	// Parameters:
	//   - ctx: cancels the detection
	//   - markerIndex: the marker to match against
	//
	// Returns:
	//   - DebugResult: the features, overlay and match
	//   - error: ErrNotReady outside Active and Stopped, common.ErrResourceUnavailable
	//     when no frame has been cropped yet, or the engine error
	DebugDetectOnce(ctx context.Context, markerIndex int) (DebugResult, error)
}

type controller struct {
	mu     *sync.Mutex
	tickMu *sync.Mutex

	id        string
	lc        lifecycle.Lifecycle
	source    frame.Source
	composer  pose.Composer
	cropper   frame.Cropper
	overlay   overlay.Renderer
	autoStart bool

	state     State
	disposed  atomic.Bool
	size      common.ViewportSize
	sizeKnown bool
	lastErr   error

	root          context.Context
	cancelRoot    context.CancelFunc
	attempt       uint64
	cancelAttempt context.CancelFunc
	// attemptDone closes when the newest attempt goroutine returns. Each attempt waits
	// for its predecessor, so at most one of them drives the lifecycle at a time.
	attemptDone chan struct{}
	wg          sync.WaitGroup

	onState      func(State)
	onError      func(error)
	poseObserver func(tracking.PoseEvent)
	notify       *notifier

	log zerolog.Logger
}

var _ Controller = &controller{}

// NewController creates an Idle session. Pose events of the lifecycle's live handle
// are routed to composer.
//
// Parameters:
//   - lc: the engine lifecycle
//   - source: the camera frame source
//   - composer: the pose composer driving the scene anchor
//   - options: functional options to configure the session
//
// Returns:
//   - Controller: the newly created session
func NewController(lc lifecycle.Lifecycle, source frame.Source, composer pose.Composer, options ...ControllerBuilderOption) Controller {
	id := uuid.NewString()
	c := &controller{
		mu:       &sync.Mutex{},
		tickMu:   &sync.Mutex{},
		id:       id,
		lc:       lc,
		source:   source,
		composer: composer,
		state:    Idle,
		log:      logging.For("session").With().Str("session", id).Logger(),
	}
	for _, option := range options {
		option(c)
	}
	if c.cropper == nil {
		c.cropper = frame.NewCropper(frame.WithLogger(c.log))
	}
	c.root, c.cancelRoot = context.WithCancel(context.Background())
	c.notify = newNotifier()
	lc.SetPoseSink(c.onPose)
	return c
}

func (c *controller) ID() string {
	return c.id
}

func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *controller) IsTracking() bool {
	return c.State() == Active
}

func (c *controller) TrackedMarkers() []int {
	return c.composer.Tracked()
}

func (c *controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *controller) Toggle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Active, Starting:
		c.stopLocked()
		return nil
	default:
		return c.startLocked()
	}
}

func (c *controller) Dispose() {
	c.mu.Lock()
	if c.state == Disposed {
		c.mu.Unlock()
		return
	}
	c.disposed.Store(true)
	c.cancelRoot()
	c.attempt++
	c.cancelAttempt = nil
	c.composer.Deactivate()
	c.lc.Teardown()
	c.setState(Disposed)
	c.mu.Unlock()

	c.tickMu.Lock()
	c.cropper.Release()
	c.tickMu.Unlock()

	c.wg.Wait()
	c.notify.close()
	c.log.Info().Msg("session disposed")
}

func (c *controller) Buffer() *frame.CropBuffer {
	return c.cropper.Buffer()
}

func (c *controller) Tick() {
	if c.disposed.Load() {
		return
	}
	c.mu.Lock()
	size, known := c.size, c.sizeKnown
	c.mu.Unlock()
	if !known {
		return
	}

	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	if c.disposed.Load() {
		return
	}
	c.cropper.Update(c.source, size)
}

func (c *controller) Resize(size common.ViewportSize) {
	if !size.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disposed || (c.sizeKnown && size == c.size) {
		return
	}
	c.size = size
	c.sizeKnown = true
	c.log.Debug().Stringer("size", size).Str("state", c.state.String()).Msg("viewport resized")

	switch c.state {
	case Idle:
		if c.autoStart {
			c.launchLocked()
		}
	case Starting, Active:
		c.restartLocked()
	}
}

func (c *controller) SetMarkerLocator(locator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Disposed || locator == c.lc.MarkerLocator() {
		return
	}
	c.lc.SetMarkerLocator(locator)
	switch c.state {
	case Starting, Active:
		c.restartLocked()
	}
}

func (c *controller) DebugDetectOnce(ctx context.Context, markerIndex int) (DebugResult, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != Active && state != Stopped {
		return DebugResult{}, ErrNotReady
	}
	h := c.lc.Current()
	if h == nil {
		return DebugResult{}, ErrNotReady
	}
	snap, ok := c.cropper.Buffer().Snapshot()
	if !ok {
		return DebugResult{}, common.ErrResourceUnavailable
	}

	res := DebugResult{Frame: snap}
	points, err := c.lc.DetectOnce(ctx, h, snap)
	if err != nil {
		return res, err
	}
	res.Points = points
	if c.overlay != nil {
		res.Overlay = c.overlay.Render(snap, points)
	}
	match, err := c.lc.MatchOnce(ctx, h, points, markerIndex)
	if err != nil {
		return res, err
	}
	res.Match = match
	c.log.Info().
		Int("features", len(points)).
		Int("marker", markerIndex).
		Bool("found", match.Found()).
		Int("inliers", match.Inliers).
		Msg("debug detect")
	return res, nil
}

// startLocked implements Start. Caller must hold mu.
func (c *controller) startLocked() error {
	switch c.state {
	case Disposed:
		return common.ErrDisposed
	case Starting, Active:
		return nil
	}
	if !c.sizeKnown {
		c.log.Debug().Msg("start deferred: no viewport size yet")
		return common.ErrResourceUnavailable
	}

	if c.state == Stopped {
		if h := c.lc.Current(); h != nil && h.Size == c.size && h.Locator == c.lc.MarkerLocator() {
			c.setState(Starting)
			c.activateLocked(h)
			return nil
		}
	}
	c.launchLocked()
	return nil
}

// stopLocked implements Stop. Caller must hold mu.
func (c *controller) stopLocked() {
	switch c.state {
	case Disposed:
		return
	case Active:
		c.setState(Stopping)
		if h := c.lc.Current(); h != nil {
			c.lc.End(h)
		}
		c.composer.Deactivate()
		c.setState(Stopped)
	case Starting:
		c.cancelAttemptLocked()
		c.lc.Teardown()
		c.composer.Deactivate()
		c.setState(Stopped)
	default:
		c.composer.Deactivate()
	}
}

// restartLocked abandons the current handle or attempt and launches a new attempt at
// the current size. Caller must hold mu.
func (c *controller) restartLocked() {
	if c.state == Active {
		if h := c.lc.Current(); h != nil {
			c.lc.End(h)
		}
	}
	c.launchLocked()
}

// launchLocked starts a background initialization attempt, superseding any previous
// one. Caller must hold mu.
func (c *controller) launchLocked() {
	c.cancelAttemptLocked()
	c.composer.Deactivate()
	c.attempt++
	id := c.attempt
	ctx, cancel := context.WithCancel(c.root)
	c.cancelAttempt = cancel
	size := c.size
	if c.state != Starting {
		c.setState(Starting)
	}

	prev := c.attemptDone
	done := make(chan struct{})
	c.attemptDone = done

	c.wg.Add(1)
	go c.runAttempt(ctx, id, size, prev, done)
}

// runAttempt waits for the superseded attempt to finish, then initializes the engine
// unless this attempt was itself superseded in the meantime.
func (c *controller) runAttempt(ctx context.Context, id uint64, size common.ViewportSize, prev <-chan struct{}, done chan<- struct{}) {
	defer c.wg.Done()
	defer close(done)
	log := c.log.With().Uint64("attempt", id).Stringer("size", size).Logger()

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		log.Debug().Msg("attempt superseded before it ran")
		return
	}
	log.Debug().Msg("initializing tracking engine")

	h, err := c.lc.Reinitialize(ctx, size, c.source)

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.attempt || c.state != Starting {
		log.Debug().Msg("attempt superseded")
		return
	}
	c.cancelAttempt = nil

	if err != nil {
		c.failLocked(log, err)
		return
	}
	c.activateLocked(h)
}

// activateLocked arms the composer and starts continuous processing on h. Caller must
// hold mu with the session Starting.
func (c *controller) activateLocked(h *lifecycle.Handle) {
	c.composer.Activate(h.Offsets)
	if err := c.lc.Begin(h, c.cropper.Buffer()); err != nil {
		c.composer.Deactivate()
		c.lc.Teardown()
		c.failLocked(c.log, err)
		return
	}
	c.lastErr = nil
	c.setState(Active)
	c.log.Info().Str("handle", h.ID).Stringer("size", h.Size).Int("markers", len(h.Geometry)).Msg("tracking active")
}

// failLocked records a failed start and returns to Idle. Caller must hold mu.
func (c *controller) failLocked(log zerolog.Logger, err error) {
	log.Error().Err(err).Msg("tracking start failed")
	c.lastErr = err
	c.setState(Idle)
	if fn := c.onError; fn != nil {
		c.notify.push(func() { fn(err) })
	}
}

func (c *controller) cancelAttemptLocked() {
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
	c.attempt++
}

// setState records a transition and queues the state handler. Caller must hold mu.
func (c *controller) setState(s State) {
	if s == c.state {
		return
	}
	c.log.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("state")
	c.state = s
	if fn := c.onState; fn != nil {
		c.notify.push(func() { fn(s) })
	}
}

func (c *controller) onPose(ev tracking.PoseEvent) {
	if c.composer.OnPose(ev) && c.poseObserver != nil {
		c.poseObserver(ev)
	}
}
