package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// splitFrame is red left of x=half, blue from half on.
func splitFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, image.Rect(0, 0, w/2, h), image.NewUniform(red), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(w/2, 0, w, h), image.NewUniform(blue), image.Point{}, draw.Src)
	return img
}

type pendingSource struct {
	ready chan struct{}
	img   image.Image
}

func (p *pendingSource) NativeSize() (int, int) { return 0, 0 }

func (p *pendingSource) Ready() <-chan struct{} { return p.ready }

func (p *pendingSource) CurrentFrame() (image.Image, bool) { return p.img, p.img != nil }

func TestUpdateFillsViewportSizedBuffer(t *testing.T) {
	t.Parallel()
	c := NewCropper()
	buf := c.Update(NewImageSource(splitFrame(1920, 1080)), common.ViewportSize{Width: 400, Height: 800})

	assert.Equal(t, common.ViewportSize{Width: 400, Height: 800}, buf.Size())
	assert.InDelta(t, 690, c.LastCrop().X, 1e-9)
	assert.InDelta(t, 540, c.LastCrop().Width, 1e-9)

	snap, ok := buf.Snapshot()
	require.True(t, ok)
	rgba := snap.(*image.RGBA)
	assert.Equal(t, red, rgba.RGBAAt(10, 400))
	assert.Equal(t, blue, rgba.RGBAAt(390, 400))
}

func TestUpdateSameSizeReusesBuffer(t *testing.T) {
	t.Parallel()
	c := NewCropper(WithScaler(draw.NearestNeighbor))
	src := NewImageSource(splitFrame(640, 480))
	size := common.ViewportSize{Width: 320, Height: 240}

	c.Update(src, size)
	first := c.Buffer().pixels()
	c.Update(src, size)
	second := c.Buffer().pixels()

	assert.Equal(t, 1, c.Buffer().Resizes())
	require.NotEmpty(t, first)
	assert.Same(t, &first[0], &second[0])

	c.Update(src, common.ViewportSize{Width: 240, Height: 320})
	assert.Equal(t, 2, c.Buffer().Resizes())
	assert.Equal(t, common.ViewportSize{Width: 240, Height: 320}, c.Buffer().Size())
}

func TestUpdateIsNoOpUntilReady(t *testing.T) {
	t.Parallel()
	c := NewCropper()
	src := &pendingSource{ready: make(chan struct{}), img: splitFrame(100, 100)}
	size := common.ViewportSize{Width: 50, Height: 50}

	buf := c.Update(src, size)
	_, ok := buf.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, common.ViewportSize{}, buf.Size())

	c.Update(nil, size)
	c.Update(NewImageSource(splitFrame(100, 100)), common.ViewportSize{})
	assert.Equal(t, 0, buf.Resizes())

	close(src.ready)
	c.Update(src, size)
	_, ok = buf.Snapshot()
	assert.True(t, ok)
}

func TestUpdateNoFrameAvailable(t *testing.T) {
	t.Parallel()
	ready := make(chan struct{})
	close(ready)
	c := NewCropper()
	buf := c.Update(&pendingSource{ready: ready}, common.ViewportSize{Width: 10, Height: 10})
	_, ok := buf.Snapshot()
	assert.False(t, ok)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	t.Parallel()
	c := NewCropper()
	buf := c.Update(NewImageSource(splitFrame(64, 64)), common.ViewportSize{Width: 64, Height: 64})

	snap, ok := buf.Snapshot()
	require.True(t, ok)
	snap.(*image.RGBA).Set(0, 0, color.RGBA{G: 255, A: 255})

	again, _ := buf.Snapshot()
	assert.Equal(t, red, again.(*image.RGBA).RGBAAt(0, 0))
}

func TestReleaseDropsPixels(t *testing.T) {
	t.Parallel()
	c := NewCropper()
	size := common.ViewportSize{Width: 8, Height: 8}
	src := NewImageSource(splitFrame(8, 8))
	c.Update(src, size)
	c.Release()

	_, ok := c.Buffer().Snapshot()
	assert.False(t, ok)
	assert.Nil(t, c.Buffer().pixels())

	c.Update(src, size)
	assert.Equal(t, 2, c.Buffer().Resizes())
}

func TestCropInto(t *testing.T) {
	t.Parallel()
	out := CropInto(splitFrame(1920, 1080), common.ViewportSize{Width: 400, Height: 800})
	require.NotNil(t, out)
	assert.Equal(t, image.Rect(0, 0, 400, 800), out.Bounds())
	assert.Equal(t, red, out.RGBAAt(5, 5))

	assert.Nil(t, CropInto(nil, common.ViewportSize{Width: 1, Height: 1}))
	assert.Nil(t, CropInto(splitFrame(4, 4), common.ViewportSize{}))
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	_, err := NewFileSource("does-not-exist.png")
	assert.Error(t, err)
	assert.False(t, IsReady(nil))
	assert.True(t, IsReady(NewImageSource(splitFrame(2, 2))))
}
