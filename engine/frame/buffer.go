package frame

import (
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
)

// CropBuffer is the off-screen image the tracking engine reads from. It is written by
// a single producer (the cropper, once per refresh tick) and read through Snapshot,
// which hands each reader its own copy. The latest frame always wins.
type CropBuffer struct {
	mu sync.RWMutex

	img     *image.RGBA
	drawn   bool
	resizes int
}

// Size returns the current buffer dimensions, zero before the first allocation.
func (b *CropBuffer) Size() common.ViewportSize {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return common.ViewportSize{}
	}
	r := b.img.Bounds()
	return common.ViewportSize{Width: r.Dx(), Height: r.Dy()}
}

// Snapshot returns a private copy of the latest frame, or false if nothing has been
// drawn since the last allocation.
func (b *CropBuffer) Snapshot() (image.Image, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil || !b.drawn {
		return nil, false
	}
	cp := &image.RGBA{
		Pix:    make([]uint8, len(b.img.Pix)),
		Stride: b.img.Stride,
		Rect:   b.img.Rect,
	}
	copy(cp.Pix, b.img.Pix)
	return cp, true
}

// Resizes returns how many times the backing image has been (re)allocated.
func (b *CropBuffer) Resizes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resizes
}

// Release drops the backing image. The next draw reallocates it.
func (b *CropBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.img = nil
	b.drawn = false
}

// draw runs fn against the backing image, resized to size first if needed. A resize
// discards the previous contents.
func (b *CropBuffer) draw(size common.ViewportSize, fn func(dst *image.RGBA)) (resized bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.img == nil || b.img.Rect.Dx() != size.Width || b.img.Rect.Dy() != size.Height {
		b.img = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		b.drawn = false
		b.resizes++
		resized = true
	}
	fn(b.img)
	b.drawn = true
	return resized
}

// pixels exposes the backing pixel slice for identity checks in tests.
func (b *CropBuffer) pixels() []uint8 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return nil
	}
	return b.img.Pix
}
