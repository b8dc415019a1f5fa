package orb

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking/estimate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

const (
	markerSize = 240
	frameW     = 640
	frameH     = 480
)

var markerOrigin = image.Pt(200, 120)

// blockMarker is a grid of random gray blocks, rich in corners.
func blockMarker() *image.RGBA {
	rng := rand.New(rand.NewPCG(7, 11))
	img := image.NewRGBA(image.Rect(0, 0, markerSize, markerSize))
	const block = 12
	for by := 0; by < markerSize; by += block {
		for bx := 0; bx < markerSize; bx += block {
			c := color.RGBA{R: 0, G: 0, B: 0, A: 255}
			v := uint8(rng.IntN(256))
			c.R, c.G, c.B = v, v, v
			draw.Draw(img, image.Rect(bx, by, bx+block, by+block), image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
	return img
}

func writeMarker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, blockMarker()))
	require.NoError(t, f.Close())
	return path
}

func blankFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{128, 128, 128, 255}), image.Point{}, draw.Src)
	return img
}

func markerFrame() *image.RGBA {
	img := blankFrame()
	m := blockMarker()
	draw.Draw(img, m.Bounds().Add(markerOrigin), m, image.Point{}, draw.Src)
	return img
}

type staticBuffer struct {
	mu  sync.Mutex
	img image.Image
}

func (b *staticBuffer) set(img image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.img = img
}

func (b *staticBuffer) Snapshot() (image.Image, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.img, b.img != nil
}

func newTestEngine(t *testing.T, opts tracking.Options) tracking.Engine {
	t.Helper()
	opts.InputWidth, opts.InputHeight = frameW, frameH
	e, err := NewEngine(opts, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Dispose() })
	return e
}

func TestNewEngineRejectsInvalidSize(t *testing.T) {
	_, err := NewEngine(tracking.Options{InputWidth: 0, InputHeight: 10})
	assert.Error(t, err)
}

func TestRegisterAndMatch(t *testing.T) {
	e := newTestEngine(t, tracking.Options{})
	geometry, err := e.RegisterMarkerBundle(context.Background(), writeMarker(t))
	require.NoError(t, err)
	assert.Equal(t, tracking.MarkerGeometry{{Width: markerSize, Height: markerSize}}, geometry)

	points, err := e.DetectOnce(context.Background(), markerFrame())
	require.NoError(t, err)
	require.NotEmpty(t, points)

	res, err := e.MatchOnce(context.Background(), points, 0)
	require.NoError(t, err)
	require.True(t, res.Found(), "matches=%d inliers=%d", res.Matches, res.Inliers)
	assert.GreaterOrEqual(t, res.Inliers, 10)

	k := estimate.Intrinsics(frameW, frameH)
	corner := estimate.ProjectMarkerPoint(estimate.ModelView(*res.ModelView), k, estimate.Point{})
	assert.InDelta(t, float64(markerOrigin.X), corner.X, 3)
	assert.InDelta(t, float64(markerOrigin.Y), corner.Y, 3)

	_, err = e.MatchOnce(context.Background(), points, 1)
	assert.Error(t, err)
}

func TestRegisterErrors(t *testing.T) {
	e := newTestEngine(t, tracking.Options{})
	_, err := e.RegisterMarkerBundle(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.RegisterMarkerBundle(ctx, writeMarker(t))
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, e.BeginContinuousProcessing(&staticBuffer{}), ErrNoMarkers)
}

func TestContinuousProcessingEmitsAndLoses(t *testing.T) {
	events := make(chan tracking.PoseEvent, 256)
	e := newTestEngine(t, tracking.Options{
		WarmupTolerance: 2,
		MissTolerance:   1,
		FilterMinCutoff: 0.001,
		FilterBeta:      1000,
		OnPoseUpdate: func(ev tracking.PoseEvent) {
			select {
			case events <- ev:
			default:
			}
		},
	})
	_, err := e.RegisterMarkerBundle(context.Background(), writeMarker(t))
	require.NoError(t, err)

	buf := &staticBuffer{}
	buf.set(markerFrame())
	require.NoError(t, e.BeginContinuousProcessing(buf))
	require.NoError(t, e.BeginContinuousProcessing(buf), "second begin is a no-op")

	waitFor := func(found bool) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev := <-events:
				assert.Equal(t, 0, ev.MarkerIndex)
				if (ev.WorldTransform != nil) == found {
					return
				}
			case <-deadline:
				t.Fatalf("no event with found=%v", found)
			}
		}
	}
	waitFor(true)

	buf.set(blankFrame())
	waitFor(false)

	e.EndContinuousProcessing()
	e.EndContinuousProcessing()
}

func TestDisposeIsIdempotent(t *testing.T) {
	e, err := NewEngine(tracking.Options{InputWidth: frameW, InputHeight: frameH})
	require.NoError(t, err)
	_, err = e.RegisterMarkerBundle(context.Background(), writeMarker(t))
	require.NoError(t, err)

	assert.NoError(t, e.Dispose())
	assert.NoError(t, e.Dispose())

	_, err = e.DetectOnce(context.Background(), markerFrame())
	assert.ErrorIs(t, err, common.ErrDisposed)
	_, err = e.MatchOnce(context.Background(), nil, 0)
	assert.ErrorIs(t, err, common.ErrDisposed)
	assert.ErrorIs(t, e.BeginContinuousProcessing(&staticBuffer{}), common.ErrDisposed)
}

func TestProjectionMatrixMatchesIntrinsics(t *testing.T) {
	e := newTestEngine(t, tracking.Options{})
	k := estimate.Intrinsics(frameW, frameH)
	assert.Equal(t, estimate.GLProjection(k, frameW, frameH, estimate.DefaultNear, estimate.DefaultFar), e.ProjectionMatrix())
	w, h := e.InputSize()
	assert.Equal(t, frameW, w)
	assert.Equal(t, frameH, h)
}
