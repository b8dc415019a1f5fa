package viewport

import "github.com/rs/zerolog"

// TrackerBuilderOption is a functional option for configuring a Tracker.
type TrackerBuilderOption func(*tracker)

// WithLogger sets the logger used for size change diagnostics.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - TrackerBuilderOption: option function to apply
func WithLogger(log zerolog.Logger) TrackerBuilderOption {
	return func(t *tracker) {
		t.log = log
	}
}
