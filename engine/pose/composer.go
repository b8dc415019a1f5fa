// Package pose turns raw marker poses from the tracking engine into anchor transforms.
package pose

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/Carmen-Shannon/oxy-ar/engine/game_object"
	"github.com/Carmen-Shannon/oxy-ar/engine/tracking"
	"github.com/rs/zerolog"
)

// Composer applies PoseEvents to a scene anchor.
type Composer interface {
	// Activate starts accepting pose events against the given per-marker offsets. The
	// tracked set starts empty.
	//
	// Parameters:
	//   - offsets: anchor offsets indexed by marker index
	Activate(offsets []common.Mat4)

	// Deactivate stops accepting pose events, clears the tracked set and hides the anchor.
	Deactivate()

	// Active reports whether pose events are being applied.
	Active() bool

	// OnPose applies one pose event. A transform for a known marker sets the anchor
	// matrix to world * offset, shows the anchor and marks the marker tracked. A nil
	// transform hides the anchor and unmarks the marker, regardless of other tracked
	// markers. Events for unknown indices, or received while inactive, are ignored.
	//
	// Parameters:
	//   - ev: the pose event
	//
	// Returns:
	//   - bool: true if the event changed the anchor
	OnPose(ev tracking.PoseEvent) bool

	// Tracked returns the currently tracked marker indices in ascending order.
	//
	// Returns:
	//   - []int: a copy of the tracked set
	Tracked() []int

	// IsTracked reports whether the marker is currently tracked.
	//
	// Parameters:
	//   - index: the marker index
	//
	// Returns:
	//   - bool: true if tracked
	IsTracked(index int) bool
}

type composer struct {
	mu *sync.Mutex

	anchor  game_object.GameObject
	offsets []common.Mat4
	active  bool
	tracked map[int]struct{}

	log zerolog.Logger
}

var _ Composer = &composer{}

// NewComposer creates an inactive Composer writing to anchor. The anchor's matrix
// auto-update is switched off since the composer becomes the only writer of its matrix.
//
// Parameters:
//   - anchor: the scene anchor
//   - options: functional options to configure the composer
//
// Returns:
//   - Composer: the newly created composer
func NewComposer(anchor game_object.GameObject, options ...ComposerBuilderOption) Composer {
	c := &composer{
		mu:      &sync.Mutex{},
		anchor:  anchor,
		tracked: make(map[int]struct{}),
		log:     zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	if anchor != nil {
		anchor.SetMatrixAutoUpdate(false)
	}
	return c
}

func (c *composer) Activate(offsets []common.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets = slices.Clone(offsets)
	clear(c.tracked)
	c.active = true
}

func (c *composer) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	clear(c.tracked)
	if c.anchor != nil {
		c.anchor.SetVisible(false)
	}
}

func (c *composer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *composer) OnPose(ev tracking.PoseEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.anchor == nil {
		return false
	}
	if ev.MarkerIndex < 0 || ev.MarkerIndex >= len(c.offsets) {
		c.log.Debug().Int("marker", ev.MarkerIndex).Msg("pose for unknown marker ignored")
		return false
	}

	if ev.WorldTransform == nil {
		_, was := c.tracked[ev.MarkerIndex]
		delete(c.tracked, ev.MarkerIndex)
		c.anchor.SetVisible(false)
		if was {
			c.log.Debug().Int("marker", ev.MarkerIndex).Msg("marker lost")
		}
		return true
	}

	world := common.FromRowMajor(*ev.WorldTransform)
	c.anchor.SetMatrix(world.Mul(c.offsets[ev.MarkerIndex]))
	c.anchor.SetVisible(true)
	if _, was := c.tracked[ev.MarkerIndex]; !was {
		c.tracked[ev.MarkerIndex] = struct{}{}
		c.log.Debug().Int("marker", ev.MarkerIndex).Msg("marker found")
	}
	return true
}

func (c *composer) Tracked() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.tracked))
	for i := range c.tracked {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func (c *composer) IsTracked(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tracked[index]
	return ok
}
