// Package viewport tracks the pixel size of the host container and publishes every
// change to subscribers.
package viewport

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-ar/common"
	"github.com/rs/zerolog"
)

// Host is the container whose drawable area defines the viewport.
type Host interface {
	Width() int
	Height() int
	SetResizeCallback(callback func(width, height int))
}

// Tracker observes a Host and publishes its size.
type Tracker interface {
	// Attach starts observing host. The current size is measured and published once
	// immediately, then on every change. Attaching while already attached detaches the
	// previous host first.
	//
	// Parameters:
	//   - host: the container to observe
	//
	// Returns:
	//   - error: common.ErrResourceUnavailable if host is nil
	Attach(host Host) error

	// Detach stops observation. Subscribers are kept and no further sizes are published.
	Detach()

	// Subscribe registers fn for size changes. If a size is already known fn is called
	// with it before Subscribe returns.
	//
	// Parameters:
	//   - fn: the subscriber
	//
	// Returns:
	//   - func(): removes the subscription
	Subscribe(fn func(common.ViewportSize)) func()

	// Size returns the last published size.
	//
	// Returns:
	//   - common.ViewportSize: the size
	//   - bool: false if nothing has been published yet
	Size() (common.ViewportSize, bool)
}

type subscriber struct {
	id int
	fn func(common.ViewportSize)
}

type tracker struct {
	mu    *sync.Mutex
	pubMu *sync.Mutex

	host       Host
	generation uint64
	current    common.ViewportSize
	known      bool

	nextSub     int
	subscribers []subscriber

	log zerolog.Logger
}

var _ Tracker = &tracker{}

// NewTracker creates a detached Tracker.
//
// Parameters:
//   - options: functional options to configure the tracker
//
// Returns:
//   - Tracker: the newly created tracker
func NewTracker(options ...TrackerBuilderOption) Tracker {
	t := &tracker{
		mu:    &sync.Mutex{},
		pubMu: &sync.Mutex{},
		log:   zerolog.Nop(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

func (t *tracker) Attach(host Host) error {
	if host == nil {
		t.log.Debug().Msg("attach skipped: no host")
		return common.ErrResourceUnavailable
	}
	t.Detach()

	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.host = host
	t.mu.Unlock()

	host.SetResizeCallback(func(width, height int) {
		t.observe(gen, common.ViewportSize{Width: width, Height: height})
	})
	t.observe(gen, common.ViewportSize{Width: host.Width(), Height: host.Height()})
	return nil
}

func (t *tracker) Detach() {
	t.mu.Lock()
	host := t.host
	t.host = nil
	t.generation++
	t.mu.Unlock()
	if host != nil {
		host.SetResizeCallback(nil)
	}
}

func (t *tracker) Subscribe(fn func(common.ViewportSize)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	t.nextSub++
	id := t.nextSub
	t.subscribers = append(t.subscribers, subscriber{id: id, fn: fn})
	t.mu.Unlock()

	t.pubMu.Lock()
	size, ok := t.Size()
	if ok {
		fn(size)
	}
	t.pubMu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subscribers {
			if s.id == id {
				t.subscribers = append(t.subscribers[:i:i], t.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (t *tracker) Size() (common.ViewportSize, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.known
}

// observe publishes size if it came from the live attachment, is valid and differs
// from the last published size. Publications are serialized so subscribers see sizes
// in order.
func (t *tracker) observe(gen uint64, size common.ViewportSize) {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()

	t.mu.Lock()
	switch {
	case gen != t.generation:
		t.mu.Unlock()
		return
	case !size.Valid():
		t.mu.Unlock()
		t.log.Debug().Stringer("size", size).Msg("ignoring non-positive viewport")
		return
	case t.known && size == t.current:
		t.mu.Unlock()
		return
	}
	t.current = size
	t.known = true
	subs := make([]subscriber, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	t.log.Debug().Stringer("size", size).Msg("viewport changed")
	for _, s := range subs {
		s.fn(size)
	}
}
