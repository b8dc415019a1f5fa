package pose

import "github.com/rs/zerolog"

// ComposerBuilderOption is a functional option for configuring a Composer.
type ComposerBuilderOption func(*composer)

// WithLogger sets the logger used for found/lost diagnostics.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - ComposerBuilderOption: option function to apply
func WithLogger(log zerolog.Logger) ComposerBuilderOption {
	return func(c *composer) {
		c.log = log
	}
}
