package lifecycle

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/camera"
	"github.com/Carmen-Shannon/oxy-ar/engine/frame"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/pose"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking/trackingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

var portrait = common.ViewportSize{Width: 400, Height: 800}

func cameraSource() frame.Source {
	return frame.NewImageSource(image.NewRGBA(image.Rect(0, 0, 1920, 1080)))
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []tracking.PoseEvent
}

func (s *sinkRecorder) record(ev tracking.PoseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestInitializeBuildsHandle(t *testing.T) {
	t.Parallel()
	proj := [16]float32{
		2, 0, 0, 0,
		0, 3, 0, 0,
		0, 0, -1, -0.2,
		0, 0, -1, 0,
	}
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) {
		e.Geometry = tracking.MarkerGeometry{{Width: 0.2, Height: 0.1}, {Width: 1, Height: 2}}
		e.Projection = proj
	}}
	cam := camera.NewCamera()
	l := NewLifecycle(f.New, cam, WithMarkerLocator("bundle.toml"))

	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Same(t, h, l.Current())
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, portrait, h.Size)
	assert.Equal(t, "bundle.toml", h.Locator)
	assert.Equal(t, pose.AnchorOffsets(h.Geometry), h.Offsets)

	eng := f.Last()
	w, hh := eng.InputSize()
	assert.Equal(t, [2]int{400, 800}, [2]int{w, hh})
	assert.Equal(t, []string{"bundle.toml"}, eng.Locators())
	assert.Equal(t, 1, eng.Warmups())
	assert.Equal(t, image.Rect(0, 0, 400, 800), eng.LastFrame().Bounds())

	assert.True(t, cam.ExternalProjection())
	assert.Equal(t, common.FromRowMajor(proj), cam.ProjectionMatrix())
}

func TestInitializeResourceUnavailable(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil)

	_, err := l.Initialize(context.Background(), portrait, nil)
	assert.ErrorIs(t, err, common.ErrResourceUnavailable)

	_, err = l.Initialize(context.Background(), common.ViewportSize{Width: 0, Height: 800}, cameraSource())
	assert.ErrorIs(t, err, common.ErrResourceUnavailable)
	assert.Empty(t, f.Engines())
	assert.Nil(t, l.Current())
}

func TestInitializeWaitsForSourceReadiness(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Initialize(ctx, portrait, neverReady{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.Engines())
}

type neverReady struct{}

func (neverReady) NativeSize() (int, int) { return 0, 0 }

func (neverReady) Ready() <-chan struct{} { return nil }

func (neverReady) CurrentFrame() (image.Image, bool) { return nil, false }

func TestInitializeConstructionFailure(t *testing.T) {
	t.Parallel()
	cause := errors.New("no gpu")
	l := NewLifecycle((&trackingtest.Factory{Err: cause}).New, nil)

	_, err := l.Initialize(context.Background(), portrait, cameraSource())
	var opErr *common.EngineOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "construct", opErr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestInitializeRegistrationFailure(t *testing.T) {
	t.Parallel()
	cause := errors.New("404")
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) { e.RegisterErr = cause }}
	l := NewLifecycle(f.New, nil, WithMarkerLocator("missing.toml"))

	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	assert.Nil(t, h)
	var regErr *common.MarkerRegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "missing.toml", regErr.Locator)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, f.Last().Disposes())
	assert.Nil(t, l.Current())
}

func TestWarmupFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) { e.WarmupErr = errors.New("cold") }}
	l := NewLifecycle(f.New, nil)

	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestCancelledAttemptDisposesEngine(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) { e.RegisterGate = gate }}
	l := NewLifecycle(f.New, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := l.Initialize(ctx, portrait, cameraSource())
		errc <- err
	}()
	require.Eventually(t, func() bool {
		e := f.Last()
		return e != nil && len(e.Locators()) == 1
	}, time.Second, time.Millisecond)

	cancel()
	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.Last().Disposes())
	assert.Nil(t, l.Current())
}

func TestTeardownAbortsInFlightAttempt(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) { e.RegisterGate = gate }}
	l := NewLifecycle(f.New, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := l.Initialize(context.Background(), portrait, cameraSource())
		errc <- err
	}()
	require.Eventually(t, func() bool { return f.Last() != nil && len(f.Last().Locators()) == 1 }, time.Second, time.Millisecond)

	l.Teardown()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Nil(t, l.Current())
	close(gate)
}

func TestSupersededAttemptNeverCommits(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	var mu sync.Mutex
	built := 0
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) {
		mu.Lock()
		defer mu.Unlock()
		if built == 0 {
			e.RegisterGate = gate
		}
		built++
	}}
	l := NewLifecycle(f.New, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := l.Initialize(context.Background(), portrait, cameraSource())
		errc <- err
	}()
	require.Eventually(t, func() bool { return f.Last() != nil && len(f.Last().Locators()) == 1 }, time.Second, time.Millisecond)

	h, err := l.Initialize(context.Background(), common.ViewportSize{Width: 800, Height: 400}, cameraSource())
	require.NoError(t, err)
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Same(t, h, l.Current())
	assert.Equal(t, 1, f.Engines()[0].Disposes())
}

func TestCancelledContextLeavesLiveHandle(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil)
	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	require.NoError(t, l.Begin(h, &frame.CropBuffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Initialize(ctx, common.ViewportSize{Width: 800, Height: 400}, cameraSource())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = l.Reinitialize(ctx, common.ViewportSize{Width: 800, Height: 400}, cameraSource())
	assert.ErrorIs(t, err, context.Canceled)

	assert.Same(t, h, l.Current())
	assert.Len(t, f.Engines(), 1)
	eng := f.Last()
	assert.True(t, eng.Processing())
	assert.Zero(t, eng.Disposes())
}

func TestEndDoesNotBlockTeardown(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	// Ending processing waits for the engine's last delivery, as the orb poller does.
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) {
		e.EndHook = func() { e.EmitLost(0) }
	}}
	l := NewLifecycle(f.New, nil, WithPoseSink(func(tracking.PoseEvent) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}))
	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	eng := f.Last()

	go eng.EmitLost(0)
	<-entered

	torn := make(chan struct{})
	go func() {
		l.Teardown()
		close(torn)
	}()
	time.Sleep(20 * time.Millisecond)
	ended := make(chan struct{})
	go func() {
		l.End(h)
		close(ended)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, done := range []chan struct{}{ended, torn} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("End and Teardown blocked each other")
		}
	}
	assert.Nil(t, l.Current())
	assert.Equal(t, 1, eng.Disposes())
}

func TestTeardownIsIdempotent(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil)
	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	require.NoError(t, l.Begin(h, &frame.CropBuffer{}))

	l.Teardown()
	l.Teardown()
	eng := f.Last()
	assert.Equal(t, 1, eng.Disposes())
	assert.Equal(t, 1, eng.Ends())
	assert.False(t, eng.Processing())
	assert.Nil(t, l.Current())
}

func TestStalePoseEventsAreDiscarded(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	rec := &sinkRecorder{}
	l := NewLifecycle(f.New, nil, WithPoseSink(rec.record))

	_, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	first := f.Last()
	first.EmitPose(0, [16]float32{})
	assert.Equal(t, 1, rec.count())

	_, err = l.Reinitialize(context.Background(), common.ViewportSize{Width: 800, Height: 400}, cameraSource())
	require.NoError(t, err)
	first.EmitPose(0, [16]float32{})
	first.EmitLost(0)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, first.Disposes())

	f.Last().EmitLost(0)
	assert.Equal(t, 2, rec.count())

	l.Teardown()
	f.Last().EmitLost(0)
	assert.Equal(t, 2, rec.count())
}

func TestBeginEndAndStaleHandles(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil)
	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)

	buf := &frame.CropBuffer{}
	require.NoError(t, l.Begin(h, buf))
	eng := f.Last()
	assert.True(t, eng.Processing())
	assert.Equal(t, tracking.FrameBuffer(buf), eng.Buffer())

	l.End(h)
	assert.False(t, eng.Processing())

	l.Teardown()
	assert.ErrorIs(t, l.Begin(h, buf), common.ErrStaleCallback)
	l.End(h)
	assert.Equal(t, 2, eng.Ends(), "End on a stale handle is a no-op")

	_, err = l.DetectOnce(context.Background(), h, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, common.ErrStaleCallback)
	_, err = l.MatchOnce(context.Background(), h, nil, 0)
	assert.ErrorIs(t, err, common.ErrStaleCallback)
}

func TestBeginFailure(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) { e.BeginErr = errors.New("busy") }}
	l := NewLifecycle(f.New, nil)
	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)

	var opErr *common.EngineOperationError
	require.ErrorAs(t, l.Begin(h, &frame.CropBuffer{}), &opErr)
	assert.Equal(t, "begin", opErr.Op)
}

func TestDetectAndMatchOnce(t *testing.T) {
	t.Parallel()
	points := []tracking.FeaturePoint{{X: 1, Y: 2}}
	mv := [12]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 5}
	f := &trackingtest.Factory{Configure: func(e *trackingtest.Engine) {
		e.Points = points
		e.Match = tracking.MatchResult{ModelView: &mv, Matches: 12, Inliers: 10}
	}}
	l := NewLifecycle(f.New, nil)
	h, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)

	got, err := l.DetectOnce(context.Background(), h, image.NewRGBA(image.Rect(0, 0, 400, 800)))
	require.NoError(t, err)
	assert.Equal(t, points, got)

	res, err := l.MatchOnce(context.Background(), h, got, 0)
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, 10, res.Inliers)

	_, err = l.DetectOnce(context.Background(), h, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrStaleCallback)
}

func TestMarkerLocator(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil, WithMarkerLocator("a.toml"))
	assert.Equal(t, "a.toml", l.MarkerLocator())
	l.SetMarkerLocator("b.toml")
	_, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.toml"}, f.Last().Locators())
}

func TestEngineOptionsTemplate(t *testing.T) {
	t.Parallel()
	f := &trackingtest.Factory{}
	l := NewLifecycle(f.New, nil, WithEngineOptions(tracking.Options{MaxSimultaneousTargets: 3, InputWidth: 1}))
	_, err := l.Initialize(context.Background(), portrait, cameraSource())
	require.NoError(t, err)
	opts := f.Last().Opts
	assert.Equal(t, 3, opts.MaxSimultaneousTargets)
	assert.Equal(t, 400, opts.InputWidth)
	assert.NotNil(t, opts.OnPoseUpdate)
}
