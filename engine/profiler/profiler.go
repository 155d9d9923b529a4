// Package profiler is the engine's instrumentation: GPU timestamps mapped onto stage boundaries, per-frame
// work counters, and a CPU frame-time ring summarised periodically through the engine logger.
package profiler

import (
	"maps"
	"runtime"
	"slices"
	"time"

	"github.com/Carmen-Shannon/oxy2d/common"
)

// Profiler tracks frame rate, memory statistics and the last GPU stage timings.
// Outputs stats to the engine logger at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	lastTick       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	now        func() time.Time
	frames     *FrameTimer
	counters   *Counters
	timestamps Timestamps

	lastFPS float64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		now:            time.Now,
		frames:         &FrameTimer{},
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	p.lastTick = p.lastTime
	return p
}

// Frames returns the CPU frame-time ring fed by Tick.
func (p *Profiler) Frames() *FrameTimer {
	return p.frames
}

// FPS returns the frame rate measured over the last completed interval.
func (p *Profiler) FPS() float64 {
	return p.lastFPS
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory,
// plus the frame counters and GPU stage timings when they are attached.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	p.frames.Record(currentTime.Sub(p.lastTick))
	p.lastTick = currentTime
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}
	p.lastFPS = float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	attrs := []any{
		"fps", p.lastFPS,
		"frameAvgMs", float64(p.frames.Average()) / float64(time.Millisecond),
		"heapMB", allocMB,
		"allocRateMBs", allocRateMB,
		"gc", gcCount,
		"gcLastPauseUs", lastPauseUs,
		"gcMaxPauseUs", maxPauseUs,
		"sysMB", sysMB,
	}
	if p.counters != nil {
		s := p.counters.Snapshot()
		attrs = append(attrs,
			"drawCalls", s.DrawCalls,
			"dispatches", s.Dispatches,
			"instances", s.TotalInstances(),
			"droppedFrames", s.DroppedFrames)
	}
	if p.timestamps != nil && p.timestamps.Supported() {
		results := p.timestamps.Results()
		for _, name := range slices.Sorted(maps.Keys(results)) {
			attrs = append(attrs, "gpu."+name+"Ms", results[name])
		}
	}
	common.Logger().Info("[Profiler]", attrs...)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
