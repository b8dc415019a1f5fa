package scene

import (
	"github.com/Carmen-Shannon/oxy-ar/engine/camera"
	"github.com/Carmen-Shannon/oxy-ar/engine/game_object"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithCamera sets the scene's camera instead of a default one.
//
// Parameters:
//   - cam: the camera to use
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cam = cam
	}
}

// WithAnchor sets the node driven by marker poses instead of a default hidden anchor.
//
// Parameters:
//   - anchor: the anchor node
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAnchor(anchor game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		s.anchor = anchor
	}
}

// WithObjects adds initial objects to the scene. They are attached beneath the anchor
// once construction completes.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		for _, obj := range objects {
			if obj == nil {
				continue
			}
			s.registry[obj.ID()] = obj
		}
	}
}
