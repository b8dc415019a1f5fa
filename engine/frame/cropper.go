// Package frame keeps an off-screen crop buffer synchronized with a live video source.
// Every refresh tick the source frame is cover-cropped to the viewport's aspect ratio
// and scaled to exactly fill the viewport size, which is also the tracking engine's
// input size.
package frame

import (
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// Cropper copies the source's current frame into its CropBuffer.
type Cropper interface {
	// Update copies the current frame of source into the crop buffer, sized to target.
	// It is a no-op when source is nil or not ready, when no frame is available, or when
	// target is not a valid size; the existing buffer is returned unchanged in that case.
	//
	// Parameters:
	//   - source: the video source
	//   - target: the viewport size
	//
	// Returns:
	//   - *CropBuffer: the crop buffer, never nil
	Update(source Source, target common.ViewportSize) *CropBuffer

	// Buffer returns the crop buffer.
	//
	// Returns:
	//   - *CropBuffer: the crop buffer, never nil
	Buffer() *CropBuffer

	// LastCrop returns the crop rectangle used by the most recent successful Update.
	//
	// Returns:
	//   - CropRect: the crop in native pixel coordinates
	LastCrop() CropRect

	// Release frees the crop buffer's pixels.
	Release()
}

type cropper struct {
	mu *sync.Mutex

	buffer   *CropBuffer
	scaler   draw.Scaler
	lastCrop CropRect

	log zerolog.Logger
}

var _ Cropper = &cropper{}

// NewCropper creates a Cropper with an empty buffer that scales with bilinear
// approximation.
//
// Parameters:
//   - options: functional options to configure the cropper
//
// Returns:
//   - Cropper: the newly created cropper
func NewCropper(options ...CropperBuilderOption) Cropper {
	c := &cropper{
		mu:     &sync.Mutex{},
		buffer: &CropBuffer{},
		scaler: draw.ApproxBiLinear,
		log:    zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *cropper) Update(source Source, target common.ViewportSize) *CropBuffer {
	if !IsReady(source) || !target.Valid() {
		return c.buffer
	}
	img, ok := source.CurrentFrame()
	if !ok || img == nil {
		return c.buffer
	}
	bounds := img.Bounds()
	nativeW, nativeH := source.NativeSize()
	if nativeW <= 0 || nativeH <= 0 {
		nativeW, nativeH = bounds.Dx(), bounds.Dy()
	}
	crop := CoverCrop(nativeW, nativeH, target)
	sr := crop.Rect(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	if sr.Empty() {
		return c.buffer
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	resized := c.buffer.draw(target, func(dst *image.RGBA) {
		c.scaler.Scale(dst, dst.Bounds(), img, sr, draw.Src, nil)
	})
	if resized {
		c.log.Debug().Stringer("size", target).Msg("crop buffer resized")
	}
	c.lastCrop = crop
	return c.buffer
}

func (c *cropper) Buffer() *CropBuffer {
	return c.buffer
}

func (c *cropper) LastCrop() CropRect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCrop
}

func (c *cropper) Release() {
	c.buffer.Release()
}

// CropInto cover-crops src to target and returns the scaled result as a new image.
// Used for one-off frames such as the engine warm-up. Returns nil when src is nil or
// either size is invalid.
//
// Parameters:
//   - src: the source frame
//   - target: the output size
//
// Returns:
//   - *image.RGBA: the cropped frame or nil
func CropInto(src image.Image, target common.ViewportSize) *image.RGBA {
	if src == nil || !target.Valid() {
		return nil
	}
	bounds := src.Bounds()
	sr := CoverCrop(bounds.Dx(), bounds.Dy(), target).Rect(bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	if sr.Empty() {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sr, draw.Src, nil)
	return dst
}
