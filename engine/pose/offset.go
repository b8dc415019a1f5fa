package pose

import (
	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
)

// AnchorOffset maps a unit-sized object at the anchor origin onto the marker's
// footprint: uniform scale by the marker width, shifted so the object is centered on
// the marker horizontally and vertically. Rotation is identity.
//
// Parameters:
//   - d: the marker dimensions
//
// Returns:
//   - common.Mat4: the offset transform (column-major)
func AnchorOffset(d tracking.MarkerDimensions) common.Mat4 {
	w, h := d.Width, d.Height
	return common.Compose(
		[3]float32{w / 2, w/2 + (h-w)/2, 0},
		[4]float32{0, 0, 0, 1},
		[3]float32{w, w, w},
	)
}

// AnchorOffsets computes one AnchorOffset per marker, preserving marker order.
//
// Parameters:
//   - g: the registered marker geometry
//
// Returns:
//   - []common.Mat4: offsets indexed by marker index
func AnchorOffsets(g tracking.MarkerGeometry) []common.Mat4 {
	out := make([]common.Mat4, len(g))
	for i, d := range g {
		out[i] = AnchorOffset(d)
	}
	return out
}
