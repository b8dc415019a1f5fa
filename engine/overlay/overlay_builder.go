package overlay

import "image/color"

// RendererBuilderOption is a functional option for configuring a Renderer.
type RendererBuilderOption func(*renderer)

// WithRadius sets the dot radius in pixels. Non-positive values are ignored.
//
// Parameters:
//   - radius: the dot radius
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithRadius(radius float32) RendererBuilderOption {
	return func(r *renderer) {
		if radius > 0 {
			r.radius = radius
		}
	}
}

// WithColor sets the dot color.
//
// Parameters:
//   - c: the fill color
//
// Returns:
//   - RendererBuilderOption: option function to apply
func WithColor(c color.Color) RendererBuilderOption {
	return func(r *renderer) {
		if c != nil {
			r.color = c
		}
	}
}
