package profiler

import (
	"maps"
	"sync"
)

// Counters accumulates per-frame work. Reset clears everything at the start of each frame except
// DroppedFrames, which counts every frame discarded since the counters were created.
type Counters struct {
	mu *sync.Mutex

	drawCalls     int
	dispatches    int
	instances     map[string]int
	droppedFrames int
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	DrawCalls     int
	Dispatches    int
	Instances     map[string]int
	DroppedFrames int
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{mu: &sync.Mutex{}, instances: make(map[string]int)}
}

// CountDraws adds draw calls and the instances they drew to a category such as "draw" or "ui".
func (c *Counters) CountDraws(category string, drawCalls, instances int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawCalls += drawCalls
	c.instances[category] += instances
}

// CountDispatches adds compute dispatches.
func (c *Counters) CountDispatches(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches += n
}

// DropFrame counts a frame discarded by a resolution change.
func (c *Counters) DropFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.droppedFrames++
}

// Reset clears the per-frame counters. DroppedFrames is kept.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawCalls = 0
	c.dispatches = 0
	clear(c.instances)
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{
		DrawCalls:     c.drawCalls,
		Dispatches:    c.dispatches,
		Instances:     maps.Clone(c.instances),
		DroppedFrames: c.droppedFrames,
	}
}

// TotalInstances sums the instances of every category.
func (s CounterSnapshot) TotalInstances() int {
	total := 0
	for _, n := range s.Instances {
		total += n
	}
	return total
}
