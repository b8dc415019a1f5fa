package lifecycle

import (
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/rs/zerolog"
)

// LifecycleBuilderOption is a functional option for configuring a Lifecycle.
type LifecycleBuilderOption func(*lifecycle)

// WithMarkerLocator sets the marker bundle locator.
//
// Parameters:
//   - locator: the bundle locator, e.g. a manifest path
//
// Returns:
//   - LifecycleBuilderOption: option function to apply
func WithMarkerLocator(locator string) LifecycleBuilderOption {
	return func(l *lifecycle) {
		l.locator = locator
	}
}

// WithEngineOptions sets the template passed to the engine factory. The input size and
// pose callback are always filled in by the lifecycle.
//
// Parameters:
//   - opts: the engine options template
//
// Returns:
//   - LifecycleBuilderOption: option function to apply
func WithEngineOptions(opts tracking.Options) LifecycleBuilderOption {
	return func(l *lifecycle) {
		l.options = opts
	}
}

// WithPoseSink sets the receiver of the live handle's pose events.
//
// Parameters:
//   - sink: the receiver
//
// Returns:
//   - LifecycleBuilderOption: option function to apply
func WithPoseSink(sink func(tracking.PoseEvent)) LifecycleBuilderOption {
	return func(l *lifecycle) {
		l.sink = sink
	}
}

// WithLogger sets the lifecycle logger.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - LifecycleBuilderOption: option function to apply
func WithLogger(log zerolog.Logger) LifecycleBuilderOption {
	return func(l *lifecycle) {
		l.log = log
	}
}
