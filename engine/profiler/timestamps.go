package profiler

import (
	"encoding/binary"
	"fmt"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// FrameSlot names the duration from the first stage begin to the last stage end of a frame.
const FrameSlot = "frame"

// Timestamps maps GPU timestamp queries onto named stage boundaries. Every stage owns a begin/end slot pair
// declared once at construction. Results are read back asynchronously and never block recording.
type Timestamps interface {
	// Supported reports whether the device records timestamps. When false every other method is a no-op.
	Supported() bool

	// Slots returns the query indices of a stage.
	//
	// Parameters:
	//   - name: the stage name
	//
	// Returns:
	//   - uint32: the begin slot
	//   - uint32: the end slot
	//   - bool: false when the stage was not declared
	Slots(name string) (uint32, uint32, bool)

	// Pass returns the timestamp writes of a stage's pass, or nil when timestamps are unsupported or the
	// stage was not declared. Passing nil to a pass descriptor disables timing for that pass.
	Pass(name string) *gpu.PassTimestamps

	// Resolve records the query resolve and the copy into the readback buffer. It must be called before the
	// encoder is finished. While the previous readback is still mapping the frame is skipped.
	//
	// Parameters:
	//   - encoder: the frame encoder
	//
	// Returns:
	//   - bool: true when the resolve was recorded
	//   - error: an encoder error
	Resolve(encoder gpu.CommandEncoder) (bool, error)

	// Readback starts mapping the readback buffer after submission. The callback converts ticks to
	// milliseconds and stores them; nothing waits for it.
	Readback()

	// Results returns the last stage durations in milliseconds, keyed by stage name plus FrameSlot.
	Results() map[string]float64

	// Skipped returns how many frames were not resolved because a readback was still pending.
	Skipped() int

	// Release frees the query set and buffers.
	Release()
}

type timestamps struct {
	mu *sync.Mutex

	device  gpu.Device
	stages  []string
	slots   map[string]uint32
	set     gpu.QuerySet
	resolve gpu.Buffer
	read    gpu.Buffer

	recorded bool
	pending  bool
	skipped  int
	results  map[string]float64
}

var _ Timestamps = &timestamps{}

// NewTimestamps declares one begin/end slot pair per stage. A device without timestamp queries yields an
// unsupported ring rather than an error.
//
// Parameters:
//   - device: the device to create the query set on
//   - stages: the stage names, in frame order
//
// Returns:
//   - Timestamps: the ring
//   - error: error if the query set or its buffers could not be created
func NewTimestamps(device gpu.Device, stages []string) (Timestamps, error) {
	t := &timestamps{
		mu:      &sync.Mutex{},
		device:  device,
		stages:  stages,
		slots:   make(map[string]uint32, len(stages)),
		results: make(map[string]float64),
	}
	if !device.SupportsTimestamps() || len(stages) == 0 {
		return t, nil
	}
	for i, name := range stages {
		if _, dup := t.slots[name]; dup {
			return nil, fmt.Errorf("profiler: stage %q declared twice", name)
		}
		t.slots[name] = uint32(i * 2)
	}

	count := uint32(len(stages) * 2)
	size := uint64(count) * 8

	set, err := device.CreateQuerySet("timestamps", count)
	if err != nil {
		return nil, fmt.Errorf("profiler: create query set: %w", err)
	}
	t.set = set
	t.resolve, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "timestamps.resolve",
		Size:  size,
		Usage: wgpu.BufferUsageQueryResolve | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("profiler: create resolve buffer: %w", err)
	}
	t.read, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "timestamps.read",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("profiler: create readback buffer: %w", err)
	}
	return t, nil
}

func (t *timestamps) Supported() bool {
	return t.set != nil
}

func (t *timestamps) Slots(name string) (uint32, uint32, bool) {
	begin, ok := t.slots[name]
	if !ok || !t.Supported() {
		return 0, 0, false
	}
	return begin, begin + 1, true
}

func (t *timestamps) Pass(name string) *gpu.PassTimestamps {
	begin, end, ok := t.Slots(name)
	if !ok {
		return nil
	}
	return &gpu.PassTimestamps{QuerySet: t.set, Begin: begin, End: end}
}

func (t *timestamps) Resolve(encoder gpu.CommandEncoder) (bool, error) {
	if !t.Supported() {
		return false, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending {
		t.skipped++
		common.Logger().Debug("timestamp readback pending, skipping resolve", "skipped", t.skipped)
		return false, nil
	}
	if err := encoder.ResolveQuerySet(t.set, 0, t.set.Count(), t.resolve, 0); err != nil {
		return false, fmt.Errorf("profiler: resolve timestamps: %w", err)
	}
	if err := encoder.CopyBufferToBuffer(t.resolve, 0, t.read, 0, t.read.Size()); err != nil {
		return false, fmt.Errorf("profiler: copy timestamps: %w", err)
	}
	t.recorded = true
	return true, nil
}

func (t *timestamps) Readback() {
	if !t.Supported() {
		return
	}
	t.mu.Lock()
	if !t.recorded {
		t.mu.Unlock()
		return
	}
	t.recorded = false
	t.pending = true
	t.mu.Unlock()

	err := t.read.MapRead(0, t.read.Size(), t.store)
	if err != nil {
		common.Logger().Warn("timestamp readback failed", "error", err)
		t.mu.Lock()
		t.pending = false
		t.mu.Unlock()
	}
}

// store runs from Device.Poll with the copied query values.
func (t *timestamps) store(data []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = false

	if err != nil {
		common.Logger().Warn("timestamp readback failed", "error", err)
		return
	}
	period := float64(t.device.TimestampPeriod())
	tick := func(slot uint32) uint64 {
		return binary.LittleEndian.Uint64(data[slot*8:])
	}

	var first, last uint64
	for _, name := range t.stages {
		b, e := tick(t.slots[name]), tick(t.slots[name]+1)
		if e <= b {
			// Not written this frame, e.g. a disabled stage.
			delete(t.results, name)
			continue
		}
		t.results[name] = float64(e-b) * period / 1e6
		if first == 0 || b < first {
			first = b
		}
		last = max(last, e)
	}
	if last > first {
		t.results[FrameSlot] = float64(last-first) * period / 1e6
	} else {
		delete(t.results, FrameSlot)
	}
}

func (t *timestamps) Results() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.results)
}

func (t *timestamps) Skipped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipped
}

func (t *timestamps) Release() {
	for _, r := range []gpu.Releaser{t.read, t.resolve, t.set} {
		if r != nil {
			r.Release()
		}
	}
	t.read, t.resolve, t.set = nil, nil, nil
}
