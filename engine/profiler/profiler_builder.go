package profiler

import "time"

// ProfilerBuilderOption is a functional option for configuring a Profiler.
// Use the With* functions to create options.
type ProfilerBuilderOption func(p *Profiler)

// WithUpdateInterval sets how often Tick logs statistics.
//
// Parameters:
//   - interval: the logging interval
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithUpdateInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.updateInterval = interval
	}
}

// WithCounters attaches frame counters to the periodic stats line.
//
// Parameters:
//   - counters: the renderer's counters
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithCounters(counters *Counters) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.counters = counters
	}
}

// WithTimestamps attaches GPU stage timings to the periodic stats line.
//
// Parameters:
//   - timestamps: the renderer's timestamp ring
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithTimestamps(timestamps Timestamps) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.timestamps = timestamps
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}
