package session

import (
	"github.com/Carmen-Shannon/oxy-ar/engine/frame"
	"github.com/Carmen-Shannon/oxy-ar/engine/overlay"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/rs/zerolog"
)

// ControllerBuilderOption is a functional option for configuring a Controller.
type ControllerBuilderOption func(*controller)

// WithAutoStart starts the session as soon as a valid viewport size is known, and
// retries on every later size change while Idle. Without it the session waits for
// Start or Toggle.
//
// Parameters:
//   - auto: true to start automatically
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithAutoStart(auto bool) ControllerBuilderOption {
	return func(c *controller) {
		c.autoStart = auto
	}
}

// WithStateHandler registers a callback for every state transition. Callbacks run in
// order on a dedicated goroutine and may call back into the controller.
//
// Parameters:
//   - fn: the state observer
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithStateHandler(fn func(State)) ControllerBuilderOption {
	return func(c *controller) {
		c.onState = fn
	}
}

// WithErrorHandler registers a callback invoked once per failed start.
//
// Parameters:
//   - fn: the error observer
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithErrorHandler(fn func(error)) ControllerBuilderOption {
	return func(c *controller) {
		c.onError = fn
	}
}

// WithPoseObserver registers a callback for every pose event applied to the anchor.
// It runs on the engine's goroutine and must not block.
//
// Parameters:
//   - fn: the pose observer
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithPoseObserver(fn func(tracking.PoseEvent)) ControllerBuilderOption {
	return func(c *controller) {
		c.poseObserver = fn
	}
}

// WithOverlay enables debug overlays for DebugDetectOnce.
//
// Parameters:
//   - r: the overlay renderer
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithOverlay(r overlay.Renderer) ControllerBuilderOption {
	return func(c *controller) {
		c.overlay = r
	}
}

// WithCropper replaces the default bilinear cropper.
//
// Parameters:
//   - cropper: the frame cropper
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithCropper(cropper frame.Cropper) ControllerBuilderOption {
	return func(c *controller) {
		c.cropper = cropper
	}
}

// WithLogger sets the session logger.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - ControllerBuilderOption: option function to apply
func WithLogger(log zerolog.Logger) ControllerBuilderOption {
	return func(c *controller) {
		c.log = log
	}
}
