package engine

import (
	"image"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/frame"
	"github.com/Carmen-Shannon/oxy-ar/engine/lifecycle"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/pose"
	"github.com/Carmen-Shannon/oxy-ar/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ar/engine/scene"
	"github.com/Carmen-Shannon/oxy-ar/engine/session"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking/trackingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

type fakeHost struct {
	mu       sync.Mutex
	w, h     int
	callback func(int, int)
}

func (f *fakeHost) Width() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w
}

func (f *fakeHost) Height() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeHost) SetResizeCallback(cb func(int, int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = cb
}

func (f *fakeHost) resize(w, h int) {
	f.mu.Lock()
	f.w, f.h = w, h
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb(w, h)
	}
}

type fakeRenderer struct {
	mu       sync.Mutex
	sizes    []common.ViewportSize
	textured int
	frames   int
	released int
}

func (f *fakeRenderer) Resize(size common.ViewportSize) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, size)
}

func (f *fakeRenderer) Render(buf tracking.FrameBuffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if buf != nil {
		if _, ok := buf.Snapshot(); ok {
			f.textured++
		}
	}
	f.frames++
	return nil
}

func (f *fakeRenderer) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *fakeRenderer) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakeRenderer) snapshot() (sizes []common.ViewportSize, textured, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.ViewportSize(nil), f.sizes...), f.textured, f.released
}

func newSession(t *testing.T, sc scene.Scene, options ...session.ControllerBuilderOption) (session.Controller, *trackingtest.Factory) {
	t.Helper()
	factory := &trackingtest.Factory{}
	lc := lifecycle.NewLifecycle(factory.New, sc.Camera(), lifecycle.WithMarkerLocator("bundle.toml"))
	src := frame.NewImageSource(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	return session.NewController(lc, src, pose.NewComposer(sc.Anchor()), options...), factory
}

func TestNewEngineFeedsInitialViewport(t *testing.T) {
	t.Parallel()
	sc := scene.NewScene("card")
	sess, factory := newSession(t, sc, session.WithAutoStart(true))
	host := &fakeHost{w: 400, h: 800}

	e := NewEngine(WithHost(host), WithScene(sc), WithSession(sess))
	defer e.Quit()

	size, ok := e.Viewport()
	require.True(t, ok)
	assert.Equal(t, common.ViewportSize{Width: 400, Height: 800}, size)
	assert.InDelta(t, 0.5, sc.Camera().Aspect(), 1e-6)
	assert.Nil(t, e.Window())
	assert.Same(t, sc, e.Scene())
	assert.Equal(t, sess, e.Session())

	require.Eventually(t, func() bool { return sess.State() == session.Active }, 2*time.Second, time.Millisecond)
	require.Len(t, factory.Engines(), 1)
	w, h := factory.Last().InputSize()
	assert.Equal(t, 400, w)
	assert.Equal(t, 800, h)

	host.resize(800, 400)
	assert.InDelta(t, 2, sc.Camera().Aspect(), 1e-6)
	require.Eventually(t, func() bool {
		return len(factory.Engines()) == 2 && sess.State() == session.Active
	}, 2*time.Second, time.Millisecond)
}

func TestRunTicksSessionUntilQuit(t *testing.T) {
	t.Parallel()
	sc := scene.NewScene("card")
	sess, _ := newSession(t, sc)
	host := &fakeHost{w: 320, h: 240}

	var renders atomic.Int32
	e := NewEngine(WithHost(host), WithScene(sc), WithSession(sess), WithRenderFrameLimit(200))
	e.SetRenderCallback(func(float32) { renders.Add(1) })

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := sess.Buffer().Snapshot()
		return ok && renders.Load() > 2
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, common.ViewportSize{Width: 320, Height: 240}, sess.Buffer().Size())

	e.Quit()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.Equal(t, session.Disposed, sess.State())
	select {
	case <-e.Done():
	default:
		t.Fatal("Done not closed")
	}
	e.Quit()
}

func TestRendererPresentsCropBuffer(t *testing.T) {
	t.Parallel()
	sc := scene.NewScene("card")
	sess, _ := newSession(t, sc)
	host := &fakeHost{w: 320, h: 240}
	r := &fakeRenderer{}

	e := NewEngine(WithHost(host), WithScene(sc), WithSession(sess), WithRenderer(r), WithRenderFrameLimit(200))
	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, textured, _ := r.snapshot()
		return textured > 0
	}, 2*time.Second, time.Millisecond)
	host.resize(160, 120)

	e.Quit()
	<-done
	sizes, _, released := r.snapshot()
	assert.Equal(t, []common.ViewportSize{{Width: 320, Height: 240}, {Width: 160, Height: 120}}, sizes)
	assert.Equal(t, 1, released)
}

func TestInactiveSceneSkipsCrop(t *testing.T) {
	t.Parallel()
	sc := scene.NewScene("card", scene.WithActive(false))
	sess, _ := newSession(t, sc)
	host := &fakeHost{w: 320, h: 240}

	var renders atomic.Int32
	e := NewEngine(WithHost(host), WithScene(sc), WithSession(sess), WithRenderFrameLimit(200))
	e.SetRenderCallback(func(float32) { renders.Add(1) })
	go e.Run()
	defer e.Quit()

	require.Eventually(t, func() bool { return renders.Load() > 2 }, 2*time.Second, time.Millisecond)
	_, ok := sess.Buffer().Snapshot()
	assert.False(t, ok)
}

func TestTickCallbackAndRate(t *testing.T) {
	t.Parallel()
	var ticks atomic.Int32
	e := NewEngine(WithTickRate(500))
	e.SetTickCallback(func(float32) { ticks.Add(1) })
	go e.Run()
	defer e.Quit()

	require.Eventually(t, func() bool { return ticks.Load() > 3 }, 2*time.Second, time.Millisecond)
	e.SetTickRate(250)
	before := ticks.Load()
	require.Eventually(t, func() bool { return ticks.Load() > before+2 }, 2*time.Second, time.Millisecond)
}

func TestNoHostStillRuns(t *testing.T) {
	t.Parallel()
	p := profiler.NewProfiler()
	e := NewEngine(WithProfiler(p), WithProfiling(true))
	_, ok := e.Viewport()
	assert.False(t, ok)
	assert.Same(t, p, e.Profiler())

	e.DisableProfiler()
	e.EnableProfiler()
	e.SetRenderFrameLimit(0)
	e.Quit()
	e.Run()
}
