package frame

import (
	"image"
	"math"

	"github.com/Carmen-Shannon/oxy-ar/common"
)

// CropRect is a sub-rectangle of the native frame in native pixel coordinates.
type CropRect struct {
	X, Y          float64
	Width, Height float64
}

// Rect rounds the crop to integer pixel bounds, clamped inside a nativeW x nativeH frame.
func (c CropRect) Rect(nativeW, nativeH int) image.Rectangle {
	x0 := int(math.Round(c.X))
	y0 := int(math.Round(c.Y))
	x1 := int(math.Round(c.X + c.Width))
	y1 := int(math.Round(c.Y + c.Height))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, nativeW, nativeH))
}

// CoverCrop returns the largest centered sub-rectangle of a nativeW x nativeH frame
// whose aspect ratio equals target's, so that scaling it to target fills the target
// with no letterboxing. A wider source is cropped horizontally, a taller or equal one
// vertically. Returns a zero rect when either size is invalid.
//
// Parameters:
//   - nativeW, nativeH: the source frame size in pixels
//   - target: the destination size
//
// Returns:
//   - CropRect: the crop in native pixel coordinates
func CoverCrop(nativeW, nativeH int, target common.ViewportSize) CropRect {
	if nativeW <= 0 || nativeH <= 0 || !target.Valid() {
		return CropRect{}
	}
	nw, nh := float64(nativeW), float64(nativeH)
	sourceAspect := nw / nh
	targetAspect := target.Aspect()

	if sourceAspect > targetAspect {
		cropW := nh * targetAspect
		return CropRect{X: (nw - cropW) / 2, Y: 0, Width: cropW, Height: nh}
	}
	cropH := nw / targetAspect
	return CropRect{X: 0, Y: (nh - cropH) / 2, Width: nw, Height: cropH}
}
