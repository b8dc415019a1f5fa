package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickReportsOncePerInterval(t *testing.T) {
	t.Parallel()
	start := time.Unix(1000, 0)
	clock := start
	p := NewProfiler()
	p.now = func() time.Time { return clock }
	p.lastTime = start

	for i := 0; i < 29; i++ {
		clock = clock.Add(time.Second / 60)
		assert.False(t, p.Tick())
	}
	for i := 0; i < 12; i++ {
		p.PoseEvent()
	}
	clock = start.Add(time.Second)
	assert.True(t, p.Tick())

	s := p.Last()
	assert.InDelta(t, 30, s.FPS, 1e-9)
	assert.InDelta(t, 12, s.PoseRate, 1e-9)
	assert.Positive(t, s.HeapMB)
	assert.Positive(t, s.SysMB)

	clock = clock.Add(2 * time.Second)
	assert.True(t, p.Tick())
	assert.InDelta(t, 0.5, p.Last().FPS, 1e-9)
	assert.Zero(t, p.Last().PoseRate)
}
