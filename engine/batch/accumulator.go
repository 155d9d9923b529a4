package batch

import (
	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
)

// Accumulator is the unordered batch list: nodes are drawn in the order they were started, which is the
// painter's order for everything drawn through it.
type Accumulator interface {
	// GetBatch returns the node draw calls for key should write to. The last node is reused when its key
	// matches and it is below the maximum capacity; otherwise a new node is appended.
	//
	// Parameters:
	//   - key: the state the instance will be drawn with
	//
	// Returns:
	//   - *Node: the node to write to
	GetBatch(key StateKey) *Node

	// Nodes returns the batch list in draw order.
	Nodes() []*Node

	// Instances returns the total number of records across every node.
	Instances() int

	// Reset empties the batch list for a new frame. Nodes keep their capacity and are reused in order.
	Reset()

	// Flush uploads every node into the shared instance buffer and issues one draw per non-empty node.
	//
	// Parameters:
	//   - pass: the render pass to record into
	//   - device: the device that owns the instance buffer
	//   - binder: binds pipeline state when the node key changes
	//   - viewport: the render target size, used to clamp and reset scissor rectangles
	//
	// Returns:
	//   - FlushStats: the work issued
	//   - error: ErrDataShape, or a buffer or binder error
	Flush(pass gpu.RenderPass, device gpu.Device, binder Binder, viewport common.Size) (FlushStats, error)

	// Release frees the instance buffer.
	Release()
}

// accumulator is the implementation of the Accumulator interface.
type accumulator struct {
	layout          Layout
	initialCapacity int
	maxCapacity     int

	nodes []*Node
	// free holds last frame's nodes, reused in order so capacities carry over between frames.
	free []*Node

	instances instanceBuffer
}

var _ Accumulator = &accumulator{}

// NewAccumulator creates an unordered accumulator for records of the given layout.
//
// Parameters:
//   - label: debug label of the shared instance buffer
//   - layout: the record layout
//   - options: functional options
//
// Returns:
//   - Accumulator: the accumulator
func NewAccumulator(label string, layout Layout, options ...AccumulatorBuilderOption) Accumulator {
	if err := layout.validate(); err != nil {
		panic(err)
	}
	a := &accumulator{
		layout:          layout,
		initialCapacity: 64,
		instances:       instanceBuffer{label: label},
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *accumulator) GetBatch(key StateKey) *Node {
	if len(a.nodes) > 0 {
		last := a.nodes[len(a.nodes)-1]
		if last.key == key && (a.maxCapacity <= 0 || last.Counter() < a.maxCapacity) {
			return last
		}
	}

	var n *Node
	if len(a.free) > 0 {
		n, a.free = a.free[0], a.free[1:]
		n.key = key
	} else {
		n = newNode(key, a.layout, a.initialCapacity)
	}
	a.nodes = append(a.nodes, n)
	return n
}

func (a *accumulator) Nodes() []*Node {
	return a.nodes
}

func (a *accumulator) Instances() int {
	total := 0
	for _, n := range a.nodes {
		total += n.Counter()
	}
	return total
}

func (a *accumulator) Reset() {
	for _, n := range a.nodes {
		n.Reset()
	}
	a.free = append(a.free, a.nodes...)
	a.nodes = a.nodes[:0:0]
}

func (a *accumulator) Flush(pass gpu.RenderPass, device gpu.Device, binder Binder, viewport common.Size) (FlushStats, error) {
	return a.instances.drawNodes(pass, device, binder, viewport, a.nodes)
}

func (a *accumulator) Release() {
	a.instances.release()
}
