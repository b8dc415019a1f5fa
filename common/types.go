// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// ViewportSize is the pixel box of the host container in device pixels.
// Both fields must be strictly positive before any engine operation proceeds.
type ViewportSize struct {
	// Width is the viewport width in pixels.
	Width int
	// Height is the viewport height in pixels.
	Height int
}

// Valid reports whether both dimensions are strictly positive.
//
// Returns:
//   - bool: true if the size can be used to size buffers and engines
func (s ViewportSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Aspect returns width / height, or 0 for an invalid size.
//
// Returns:
//   - float64: the aspect ratio
func (s ViewportSize) Aspect() float64 {
	if !s.Valid() {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

func (s ViewportSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// LoadRGBA decodes a PNG or JPEG file into an RGBA image whose bounds start at the origin.
// Reference: https://pkg.go.dev/image
//
// Parameters:
//   - path: the image file path
//
// Returns:
//   - *image.RGBA: the decoded pixels
//   - error: error if the file cannot be opened or decoded
func LoadRGBA(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image file %s: %w", path, err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba, nil
}
