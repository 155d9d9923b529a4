// Package batch accumulates per-instance draw records on the CPU and flushes them as the minimum number of
// instanced draw calls. Every instance is a fixed-stride run of float32 fields described by a Layout.
//
// Accumulators are not safe for concurrent use: draw calls and flushes run on the render goroutine.
package batch

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
)

// ErrDataShape is returned when instance data is not an exact multiple of its stride. A batch in this state
// is never submitted.
var ErrDataShape = errors.New("batch: instance data is not a multiple of the record stride")

// Layout describes the packed record of one instance.
type Layout struct {
	// Stride is the number of float32 fields per instance.
	Stride int
	// YField is the index of the vertical position within a record. Sorting keys on it.
	YField int
}

// Bytes returns the record size in bytes.
func (l Layout) Bytes() int {
	return l.Stride * 4
}

func (l Layout) validate() error {
	if l.Stride <= 0 {
		return fmt.Errorf("%w: stride %d", ErrDataShape, l.Stride)
	}
	if l.YField < 0 || l.YField >= l.Stride {
		return fmt.Errorf("%w: y field %d outside stride %d", ErrDataShape, l.YField, l.Stride)
	}
	return nil
}

// StateKey identifies the GPU state a batch is drawn with. Each draw call binds exactly one pipeline
// variant and one clip rectangle, so any change of key starts a new node.
type StateKey struct {
	// Variant names the pipeline variant.
	Variant string
	// Clip is the scissor rectangle in pixels. Only meaningful when Clipped is set.
	Clip common.ClipRect
	// Clipped enables the scissor rectangle.
	Clipped bool
}

// Node is one growable instance array tied to a single StateKey.
type Node struct {
	key    StateKey
	layout Layout

	// data holds capacity*stride floats; the first size are live.
	data     []float32
	size     int
	capacity int
	growths  int
}

func newNode(key StateKey, layout Layout, capacity int) *Node {
	capacity = max(capacity, 1)
	return &Node{
		key:      key,
		layout:   layout,
		data:     make([]float32, capacity*layout.Stride),
		capacity: capacity,
	}
}

// Key returns the state the node is drawn with.
func (n *Node) Key() StateKey { return n.key }

// Layout returns the record layout.
func (n *Node) Layout() Layout { return n.layout }

// Counter returns the number of complete records written this frame.
func (n *Node) Counter() int { return n.size / n.layout.Stride }

// Capacity returns the number of records the node can hold before it grows.
func (n *Node) Capacity() int { return n.capacity }

// Growths returns how many times the node has grown since it was created.
func (n *Node) Growths() int { return n.growths }

// Data returns the live packed records. The slice aliases the node and is invalidated by the next write.
func (n *Node) Data() []float32 { return n.data[:n.size] }

// Validate reports ErrDataShape when the live data does not end on a record boundary.
func (n *Node) Validate() error {
	if n.size%n.layout.Stride != 0 {
		return fmt.Errorf("%w: %q holds %d floats, stride %d", ErrDataShape, n.key.Variant, n.size, n.layout.Stride)
	}
	return nil
}

// Push appends one record. The record must be exactly one stride long.
//
// Parameters:
//   - record: the packed instance fields
func (n *Node) Push(record []float32) {
	if len(record) != n.layout.Stride {
		panic(fmt.Sprintf("batch: record of %d floats pushed to %q (stride %d)", len(record), n.key.Variant, n.layout.Stride))
	}
	copy(n.Next(), record)
}

// Next reserves one record and returns it for the caller to fill in place.
//
// Returns:
//   - []float32: the reserved record, one stride long
func (n *Node) Next() []float32 {
	n.reserve(n.layout.Stride)
	start := n.size
	n.size += n.layout.Stride
	return n.data[start:n.size]
}

// AppendRaw appends already-packed floats without checking record boundaries. It is the bulk path for
// pre-laid-out runs such as glyph strings; Validate catches a run that does not end on a boundary.
//
// Parameters:
//   - values: packed floats
func (n *Node) AppendRaw(values []float32) {
	n.reserve(len(values))
	copy(n.data[n.size:], values)
	n.size += len(values)
}

// Reset drops the live records and keeps the capacity.
func (n *Node) Reset() {
	n.size = 0
}

// reserve grows until extra more floats fit. Each growth step is ceil(capacity * 1.5) and copies the live
// records forward at their original indices.
func (n *Node) reserve(extra int) {
	need := n.size + extra
	if need <= len(n.data) {
		return
	}
	capacity := n.capacity
	for capacity*n.layout.Stride < need {
		capacity = common.GrowCapacity(capacity)
		n.growths++
	}
	grown := make([]float32, capacity*n.layout.Stride)
	copy(grown, n.data[:n.size])
	n.data = grown
	n.capacity = capacity
}

// replace swaps in a freshly sorted copy of the live data. sorted must share the node's capacity.
func (n *Node) replace(sorted []float32) {
	n.data = sorted[:cap(sorted)]
	n.size = len(sorted)
	n.capacity = cap(sorted) / n.layout.Stride
}
