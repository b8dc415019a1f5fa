package frame

import (
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// CropperBuilderOption is a functional option for configuring a Cropper.
type CropperBuilderOption func(*cropper)

// WithScaler sets the scaler used to fit the crop into the buffer, e.g.
// draw.NearestNeighbor for speed or draw.CatmullRom for quality.
//
// Parameters:
//   - scaler: the scaler
//
// Returns:
//   - CropperBuilderOption: option function to apply
func WithScaler(scaler draw.Scaler) CropperBuilderOption {
	return func(c *cropper) {
		if scaler != nil {
			c.scaler = scaler
		}
	}
}

// WithLogger sets the logger used for buffer diagnostics.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - CropperBuilderOption: option function to apply
func WithLogger(log zerolog.Logger) CropperBuilderOption {
	return func(c *cropper) {
		c.log = log
	}
}
