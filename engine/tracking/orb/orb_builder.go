package orb

import (
	"time"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking/estimate"
	"github.com/rs/zerolog"
)

const maxWorkers = 32

// EngineBuilderOption is a functional option for configuring the ORB engine.
type EngineBuilderOption func(*engine)

// WithPollInterval sets how often the frame buffer is sampled during continuous
// processing. Defaults to 33ms.
//
// Parameters:
//   - d: the polling period, ignored if not positive
//
// Returns:
//   - EngineBuilderOption: functional option to set the poll interval
func WithPollInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithRatioTest sets the nearest/second-nearest distance ratio a match must beat.
//
// Parameters:
//   - ratio: a value in (0, 1]
//
// Returns:
//   - EngineBuilderOption: functional option to set the ratio
func WithRatioTest(ratio float64) EngineBuilderOption {
	return func(e *engine) {
		if ratio > 0 && ratio <= 1 {
			e.ratio = ratio
		}
	}
}

// WithMinMatches sets the minimum number of ratio-test matches and homography
// inliers for a marker to count as found. Also the minimum feature count of a marker image.
func WithMinMatches(n int) EngineBuilderOption {
	return func(e *engine) {
		if n >= 4 {
			e.minMatches = n
		}
	}
}

// WithRansacOptions replaces the homography RANSAC parameters.
func WithRansacOptions(opts estimate.RansacOptions) EngineBuilderOption {
	return func(e *engine) {
		e.ransac = opts
	}
}

// WithWorkers sets the number of goroutines matching markers in parallel, clamped to
// [1, maxWorkers].
func WithWorkers(n int) EngineBuilderOption {
	return func(e *engine) {
		e.workers = common.Clamp(n, 1, maxWorkers)
	}
}

func WithLogger(l zerolog.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.log = l
	}
}
