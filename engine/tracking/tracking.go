// Package tracking defines the contract between the frame-sync pipeline and a marker
// tracking engine. The engine is opaque: it owns feature detection, matching and pose
// estimation, and reports poses back through the OnPoseUpdate callback.
package tracking

import (
	"context"
	"image"
)

// MarkerDimensions is the physical footprint of one registered marker in engine units.
type MarkerDimensions struct {
	Width  float32
	Height float32
}

// MarkerGeometry lists one MarkerDimensions per registered marker. The slice index is
// the marker's identity for the lifetime of the engine handle.
type MarkerGeometry []MarkerDimensions

// PoseEvent is emitted by the engine whenever a marker's pose changes.
// A nil WorldTransform means the marker is currently not detected.
type PoseEvent struct {
	MarkerIndex int
	// WorldTransform is the marker's world matrix as 16 floats, row-major.
	WorldTransform *[16]float32
}

// FeaturePoint is a single detected image feature in crop-buffer pixel coordinates.
type FeaturePoint struct {
	X, Y       float64
	Size       float64
	Angle      float64
	Response   float64
	Descriptor []byte
}

// MatchResult is the raw outcome of matching a feature set against one marker.
type MatchResult struct {
	MarkerIndex int
	// ModelView is the 3x4 marker-to-camera transform, row-major; nil when no match.
	ModelView *[12]float64
	// Matches is the number of descriptor matches that passed the ratio test.
	Matches int
	// Inliers is the number of matches consistent with the estimated homography.
	Inliers int
}

// Found reports whether the match produced a pose.
func (m MatchResult) Found() bool {
	return m.ModelView != nil
}

// FrameBuffer is the handle an engine polls during continuous processing. Each call to
// Snapshot returns an independent copy of the latest frame, or false if nothing has
// been drawn yet.
type FrameBuffer interface {
	Snapshot() (image.Image, bool)
}

// Options configures a tracking engine at construction time. The engine's internal
// buffers are sized to InputWidth x InputHeight and cannot be resized afterwards.
type Options struct {
	InputWidth             int
	InputHeight            int
	MaxSimultaneousTargets int
	OnPoseUpdate           func(PoseEvent)
	DebugMode              bool
	// WarmupTolerance is the number of consecutive detections before a marker is shown.
	WarmupTolerance int
	// MissTolerance is the number of consecutive misses before a shown marker is hidden.
	MissTolerance   int
	FilterMinCutoff float64
	FilterBeta      float64
}

// Engine is the tracking engine collaborator.
type Engine interface {
	// InputSize returns the frame size the engine was constructed for.
	InputSize() (width, height int)

	// RegisterMarkerBundle loads the marker bundle identified by locator and returns the
	// geometry of every marker it contains. Fails on malformed or unreachable bundles.
	RegisterMarkerBundle(ctx context.Context, locator string) (MarkerGeometry, error)

	// Warmup runs one throwaway inference on frame.
	Warmup(frame image.Image) error

	// BeginContinuousProcessing starts polling buf and emitting PoseEvents.
	BeginContinuousProcessing(buf FrameBuffer) error

	// EndContinuousProcessing stops polling. Safe to call when not processing.
	EndContinuousProcessing()

	// DetectOnce runs a single feature detection on frame.
	DetectOnce(ctx context.Context, frame image.Image) ([]FeaturePoint, error)

	// MatchOnce matches points against the marker at markerIndex.
	MatchOnce(ctx context.Context, points []FeaturePoint, markerIndex int) (MatchResult, error)

	// ProjectionMatrix returns the camera projection as 16 floats, row-major.
	ProjectionMatrix() [16]float32

	// Dispose releases every engine resource. Safe to call more than once.
	Dispose() error
}

// Factory constructs an engine from options.
type Factory func(opts Options) (Engine, error)
