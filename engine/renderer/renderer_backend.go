package renderer

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// backend is the GPU side of the background renderer. All methods are called from the
// render goroutine with the renderer lock held.
type backend interface {
	// ConfigureSurface (re)configures the swapchain for a new framebuffer size.
	ConfigureSurface(width, height int) error

	// EnsureTexture (re)creates the frame texture and its bind group for the given size.
	EnsureTexture(width, height int) error

	// Upload writes tightly or loosely packed RGBA rows into the frame texture.
	Upload(pix []uint8, stride, width, height int)

	// Draw clears the surface, draws the frame texture fullscreen when textured is
	// true, and presents.
	Draw(textured bool) error

	// Release frees every GPU resource.
	Release()
}
