package profiler

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-ar/engine/logging"
	"github.com/rs/zerolog"
)

// Stats is one reporting interval's worth of measurements.
type Stats struct {
	// FPS is refresh ticks per second.
	FPS float64
	// PoseRate is pose events per second delivered by the tracking engine.
	PoseRate float64
	// HeapMB is live heap memory.
	HeapMB float64
	// AllocRateMB is heap allocation churn in MB per second.
	AllocRateMB float64
	// GCCount is the cumulative number of collections.
	GCCount uint32
	// MaxPauseUs is the longest GC pause since the last report.
	MaxPauseUs uint64
	// SysMB is memory obtained from the OS.
	SysMB float64
}

// Profiler tracks refresh rate, pose event rate and memory statistics.
// Tick is called from the refresh goroutine; PoseEvent may be called from any goroutine.
type Profiler struct {
	frameCount     int
	poseCount      atomic.Int64
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats

	now func() time.Time
	log zerolog.Logger
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		now:            time.Now,
		log:            logging.For("profiler"),
	}
}

// PoseEvent counts one pose event toward the current interval.
func (p *Profiler) PoseEvent() {
	p.poseCount.Add(1)
}

// Last returns the stats of the most recent completed interval.
func (p *Profiler) Last() Stats {
	return p.last
}

// Tick should be called once per refresh tick.
// Logs statistics when the update interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	s := Stats{
		FPS:      float64(p.frameCount) / elapsed.Seconds(),
		PoseRate: float64(p.poseCount.Swap(0)) / elapsed.Seconds(),
		HeapMB:   float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:    float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:  p.memStats.NumGC,
	}
	s.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses.
	startIdx := p.lastGCCount
	if s.GCCount-startIdx > 256 {
		startIdx = s.GCCount - 256
	}
	for i := startIdx; i < s.GCCount; i++ {
		if pause := p.memStats.PauseNs[i%256] / 1000; pause > s.MaxPauseUs {
			s.MaxPauseUs = pause
		}
	}

	p.log.Info().
		Float64("fps", s.FPS).
		Float64("pose_rate", s.PoseRate).
		Float64("heap_mb", s.HeapMB).
		Float64("alloc_rate_mb", s.AllocRateMB).
		Uint32("gc", s.GCCount).
		Uint64("gc_max_pause_us", s.MaxPauseUs).
		Float64("sys_mb", s.SysMB).
		Msg("stats")

	p.last = s
	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
