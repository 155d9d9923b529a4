package profiler

import "time"

// FrameHistory is the number of CPU frame durations a FrameTimer keeps.
const FrameHistory = 600

// FrameTimer is a ring of the most recent CPU frame durations.
type FrameTimer struct {
	frames [FrameHistory]time.Duration
	count  int
}

// Record appends a frame duration, overwriting the oldest once the ring is full.
func (t *FrameTimer) Record(d time.Duration) {
	t.frames[t.count%FrameHistory] = d
	t.count++
}

// Len returns the number of recorded durations, at most FrameHistory.
func (t *FrameTimer) Len() int {
	return min(t.count, FrameHistory)
}

// Last returns the most recent duration, or zero before the first Record.
func (t *FrameTimer) Last() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.frames[(t.count-1)%FrameHistory]
}

// Average returns the mean of the recorded durations.
func (t *FrameTimer) Average() time.Duration {
	n := t.Len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range t.frames[:n] {
		sum += d
	}
	return sum / time.Duration(n)
}

// FPS returns the frame rate implied by Average.
func (t *FrameTimer) FPS() float64 {
	avg := t.Average()
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}
