package capture

import (
	"time"

	"github.com/rs/zerolog"
)

// CameraBuilderOption is a functional option for configuring a Camera.
type CameraBuilderOption func(*camera)

// WithRequestedSize asks the device for a capture resolution. Devices may pick the
// nearest mode they support; NativeSize reports what was delivered.
//
// Parameters:
//   - width, height: requested frame size in pixels
//
// Returns:
//   - CameraBuilderOption: functional option to request a size
func WithRequestedSize(width, height int) CameraBuilderOption {
	return func(c *camera) {
		c.requestW, c.requestH = width, height
	}
}

// WithLoop rewinds video files at end of stream instead of stopping.
func WithLoop(loop bool) CameraBuilderOption {
	return func(c *camera) {
		c.loop = loop
	}
}

// WithFrameInterval paces video-file playback. Defaults to the file's own frame rate.
func WithFrameInterval(d time.Duration) CameraBuilderOption {
	return func(c *camera) {
		c.frameInterval = d
	}
}

func WithLogger(l zerolog.Logger) CameraBuilderOption {
	return func(c *camera) {
		c.log = l
	}
}
