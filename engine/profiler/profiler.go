package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/frame"
	"github.com/charmbracelet/log"
)

// Report is one interval's worth of measurements.
type Report struct {
	Frames     int
	FPS        float64
	HeapMB     float64
	AllocRate  float64 // MB/s
	GCCount    uint32
	MaxPauseUs uint64
	SysMB      float64
	// Draw is the per-frame average of the recorded commands.
	Draw frame.Stats
}

// Profiler tracks frame rate, memory and draw statistics.
// It logs a Report at a configurable interval.
type Profiler struct {
	logger         *log.Logger
	now            func() time.Time
	updateInterval time.Duration

	frameCount     int
	draw           frame.Stats
	lastTime       time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Report
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:         logger.For("profiler"),
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per frame with that frame's draw stats.
// When the update interval has elapsed it logs FPS, heap usage, allocation rate, GC pauses
// and the average draw stats of the interval.
//
// Parameters:
//   - stats: the commands recorded this frame
//
// Returns:
//   - bool: true if stats were logged this tick
func (p *Profiler) Tick(stats frame.Stats) bool {
	p.frameCount++
	p.draw = p.draw.Add(stats)

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		Frames:  p.frameCount,
		FPS:     float64(p.frameCount) / elapsed.Seconds(),
		HeapMB:  float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:   float64(p.memStats.Sys) / 1024 / 1024,
		GCCount: p.memStats.NumGC,
		Draw:    average(p.draw, p.frameCount),
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRate = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses
	startIdx := p.lastGCCount
	if r.GCCount-startIdx > 256 {
		startIdx = r.GCCount - 256
	}
	for i := startIdx; i < r.GCCount; i++ {
		r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	p.logger.Info("frame stats",
		"fps", r.FPS,
		"heap_mb", r.HeapMB,
		"alloc_mb_s", r.AllocRate,
		"gc", r.GCCount,
		"gc_max_us", r.MaxPauseUs,
		"sys_mb", r.SysMB,
		"pipelines", r.Draw.Pipelines,
		"bind_groups", r.Draw.BindGroups,
		"draws", r.Draw.Draws,
		"instances", r.Draw.Instances,
	)

	p.last = r
	p.frameCount = 0
	p.draw = frame.Stats{}
	p.lastTime = currentTime
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the most recently logged report.
func (p *Profiler) Last() Report {
	return p.last
}

func average(s frame.Stats, frames int) frame.Stats {
	if frames == 0 {
		return s
	}
	n := frames
	return frame.Stats{
		Pipelines:     s.Pipelines / n,
		BindGroups:    s.BindGroups / n,
		VertexBuffers: s.VertexBuffers / n,
		IndexBuffers:  s.IndexBuffers / n,
		Draws:         s.Draws / n,
		Instances:     s.Instances / n,
	}
}
