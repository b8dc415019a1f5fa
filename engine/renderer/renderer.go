// Package renderer draws the camera background of the AR view: every refresh the crop
// buffer is uploaded to a GPU texture and drawn over the whole window surface.
package renderer

import (
	"image"
	"image/color"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/Carmen-Shannon/oxy-ar/engine/window"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// Renderer presents frame buffers on the window surface.
type Renderer interface {
	// Resize records a new framebuffer size. The surface is reconfigured on the next
	// Render, so Resize may be called from any goroutine. A zero size (minimized window)
	// suspends drawing.
	//
	// Parameters:
	//   - size: the new framebuffer size
	Resize(size common.ViewportSize)

	// Render draws the latest frame of buf over the surface and presents it. Without a
	// frame the surface is only cleared.
	//
	// Parameters:
	//   - buf: the frame buffer to show, may be nil
	//
	// Returns:
	//   - error: common.ErrDisposed after Release, or the GPU error
	Render(buf tracking.FrameBuffer) error

	// Frames returns how many frames have been presented.
	Frames() int

	// Release frees the GPU resources. Idempotent.
	Release()
}

type renderer struct {
	mu *sync.Mutex

	backend backend

	surface    common.ViewportSize
	configured common.ViewportSize
	texture    common.ViewportSize
	frames     int
	released   bool

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	presentMode          PresentMode
	clearColor           color.RGBA

	log zerolog.Logger
}

var _ Renderer = &renderer{}

// NewRenderer creates a WebGPU background renderer on the window's surface, sized to
// the window's current framebuffer.
//
// Parameters:
//   - win: the host window
//   - options: functional options to configure the renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: common.ErrResourceUnavailable without a window surface, or the GPU error
func NewRenderer(win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := newRenderer(options...)
	if win == nil {
		return nil, common.ErrResourceUnavailable
	}
	desc := win.SurfaceDescriptor()
	if desc == nil {
		return nil, common.ErrResourceUnavailable
	}
	b, err := newWGPUBackend(desc, r.forceFallbackAdapter, r.presentMode, r.clearColor)
	if err != nil {
		return nil, err
	}
	r.backend = b
	r.surface = common.ViewportSize{Width: win.Width(), Height: win.Height()}
	return r, nil
}

// newRenderer applies options to a renderer without a backend.
func newRenderer(options ...RendererBuilderOption) *renderer {
	r := &renderer{
		mu:          &sync.Mutex{},
		presentMode: PresentModeVSync,
		clearColor:  color.RGBA{A: 255},
		log:         logging.For("renderer"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *renderer) Resize(size common.ViewportSize) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = size
}

func (r *renderer) Render(buf tracking.FrameBuffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return common.ErrDisposed
	}
	if !r.surface.Valid() {
		return nil
	}
	if r.surface != r.configured {
		if err := r.backend.ConfigureSurface(r.surface.Width, r.surface.Height); err != nil {
			return err
		}
		r.log.Debug().Stringer("size", r.surface).Msg("surface configured")
		r.configured = r.surface
	}

	textured := false
	if buf != nil {
		if img, ok := buf.Snapshot(); ok {
			rgba := toRGBA(img)
			size := common.ViewportSize{Width: rgba.Rect.Dx(), Height: rgba.Rect.Dy()}
			if size.Valid() {
				if size != r.texture {
					if err := r.backend.EnsureTexture(size.Width, size.Height); err != nil {
						return err
					}
					r.texture = size
				}
				r.backend.Upload(rgba.Pix[rgba.PixOffset(rgba.Rect.Min.X, rgba.Rect.Min.Y):], rgba.Stride, size.Width, size.Height)
				textured = true
			}
		}
	}

	if err := r.backend.Draw(textured); err != nil {
		return err
	}
	r.frames++
	return nil
}

func (r *renderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	if r.backend != nil {
		r.backend.Release()
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out
}
