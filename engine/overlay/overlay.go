// Package overlay draws detected feature points over a copy of a frame for visual
// debugging of the tracking engine.
package overlay

import (
	"image"
	"image/color"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// kappa places cubic Bezier control points so four segments approximate a circle.
const kappa = 0.5522847498

// Renderer paints feature points as filled dots.
type Renderer interface {
	// Render copies base into a new image of the same size and fills a dot at every
	// point. Points outside the image are clipped.
	//
	// Parameters:
	//   - base: the background frame
	//   - points: feature points in base's pixel coordinates
	//
	// Returns:
	//   - *image.RGBA: the overlay, nil if base is nil
	Render(base image.Image, points []tracking.FeaturePoint) *image.RGBA

	// Last returns the most recently rendered overlay, or nil.
	//
	// Returns:
	//   - *image.RGBA: the last overlay
	Last() *image.RGBA
}

type renderer struct {
	mu *sync.Mutex

	radius float32
	color  color.Color
	last   *image.RGBA
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer drawing red dots of radius 3.
//
// Parameters:
//   - options: functional options to configure the renderer
//
// Returns:
//   - Renderer: the newly created renderer
func NewRenderer(options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:     &sync.Mutex{},
		radius: 3,
		color:  color.RGBA{R: 0xff, A: 0xff},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *renderer) Render(base image.Image, points []tracking.FeaturePoint) *image.RGBA {
	if base == nil {
		return nil
	}
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), base, b.Min, draw.Src)

	if len(points) > 0 && b.Dx() > 0 && b.Dy() > 0 {
		z := vector.NewRasterizer(b.Dx(), b.Dy())
		z.DrawOp = draw.Over
		for _, p := range points {
			circle(z, float32(p.X), float32(p.Y), r.radius)
		}
		z.Draw(dst, dst.Bounds(), image.NewUniform(r.color), image.Point{})
	}

	r.mu.Lock()
	r.last = dst
	r.mu.Unlock()
	return dst
}

func (r *renderer) Last() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// circle appends a closed circular path to z.
func circle(z *vector.Rasterizer, cx, cy, rad float32) {
	k := rad * kappa
	z.MoveTo(cx+rad, cy)
	z.CubeTo(cx+rad, cy+k, cx+k, cy+rad, cx, cy+rad)
	z.CubeTo(cx-k, cy+rad, cx-rad, cy+k, cx-rad, cy)
	z.CubeTo(cx-rad, cy-k, cx-k, cy-rad, cx, cy-rad)
	z.CubeTo(cx+k, cy-rad, cx+rad, cy-k, cx+rad, cy)
	z.ClosePath()
}
