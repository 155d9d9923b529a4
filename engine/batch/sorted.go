package batch

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
)

// Bucket is a fixed primitive category of the depth-sorted accumulator.
type Bucket int

const (
	OpaqueQuad Bucket = iota
	OpaqueCircle
	OpaqueGlyph
	TransparentQuad
	TransparentCircle
	TransparentGlyph

	bucketCount
)

// Buckets lists every bucket in draw order.
var Buckets = [bucketCount]Bucket{OpaqueQuad, OpaqueCircle, OpaqueGlyph, TransparentQuad, TransparentCircle, TransparentGlyph}

// Transparent reports whether the bucket is blended and therefore sorted on the CPU.
func (b Bucket) Transparent() bool {
	return b >= TransparentQuad && b < bucketCount
}

// Primitive returns the primitive name shared by the opaque and transparent variant of a bucket.
func (b Bucket) Primitive() string {
	switch b {
	case OpaqueQuad, TransparentQuad:
		return "quad"
	case OpaqueCircle, TransparentCircle:
		return "circle"
	case OpaqueGlyph, TransparentGlyph:
		return "glyph"
	default:
		return fmt.Sprintf("bucket(%d)", int(b))
	}
}

// String returns the pipeline variant name of the bucket, e.g. "opaque-quad".
func (b Bucket) String() string {
	if b.Transparent() {
		return "transparent-" + b.Primitive()
	}
	return "opaque-" + b.Primitive()
}

// SortedAccumulator is the depth-sorted batch list. Opaque buckets draw first and rely on the depth buffer;
// transparent buckets are re-sorted by Y every frame and drawn back to front with depth writes disabled.
type SortedAccumulator interface {
	// GetBatch returns the node of a bucket.
	GetBatch(bucket Bucket) *Node

	// Instances returns the total number of records across every bucket.
	Instances() int

	// Reset empties every bucket for a new frame.
	Reset()

	// Sort replaces every transparent bucket's data with a sorted copy. Flush calls it; it is exposed so
	// callers can inspect the draw order.
	//
	// Returns:
	//   - error: wrapped ErrDataShape when a transparent bucket is misaligned
	Sort() error

	// Flush sorts, uploads and draws every bucket in bucket order.
	//
	// Parameters:
	//   - pass: the render pass to record into
	//   - device: the device that owns the instance buffer
	//   - binder: binds the pipeline variant named by Bucket.String
	//   - viewport: the render target size
	//
	// Returns:
	//   - FlushStats: the work issued
	//   - error: wrapped ErrDataShape, or a buffer or binder error
	Flush(pass gpu.RenderPass, device gpu.Device, binder Binder, viewport common.Size) (FlushStats, error)

	// Release frees the instance buffer.
	Release()
}

// sortedAccumulator is the implementation of the SortedAccumulator interface.
type sortedAccumulator struct {
	nodes           [bucketCount]*Node
	order           SortOrder
	initialCapacity int
	instances       instanceBuffer
}

var _ SortedAccumulator = &sortedAccumulator{}

// NewSortedAccumulator creates a depth-sorted accumulator. Quads and circles share the shape layout.
//
// Parameters:
//   - label: debug label of the shared instance buffer
//   - shape: the record layout of quad and circle buckets
//   - glyph: the record layout of glyph buckets
//   - options: functional options
//
// Returns:
//   - SortedAccumulator: the accumulator
func NewSortedAccumulator(label string, shape, glyph Layout, options ...SortedAccumulatorBuilderOption) SortedAccumulator {
	for _, l := range []Layout{shape, glyph} {
		if err := l.validate(); err != nil {
			panic(err)
		}
	}
	s := &sortedAccumulator{
		order:           Ascending,
		initialCapacity: 64,
		instances:       instanceBuffer{label: label},
	}
	for _, opt := range options {
		opt(s)
	}
	for _, b := range Buckets {
		layout := shape
		if b.Primitive() == "glyph" {
			layout = glyph
		}
		s.nodes[b] = newNode(StateKey{Variant: b.String()}, layout, s.initialCapacity)
	}
	return s
}

func (s *sortedAccumulator) GetBatch(bucket Bucket) *Node {
	if bucket < 0 || bucket >= bucketCount {
		panic(fmt.Sprintf("batch: unknown bucket %d", int(bucket)))
	}
	return s.nodes[bucket]
}

func (s *sortedAccumulator) Instances() int {
	total := 0
	for _, n := range s.nodes {
		total += n.Counter()
	}
	return total
}

func (s *sortedAccumulator) Reset() {
	for _, n := range s.nodes {
		n.Reset()
	}
}

func (s *sortedAccumulator) Sort() error {
	for _, b := range Buckets {
		if !b.Transparent() {
			continue
		}
		n := s.nodes[b]
		if n.size == 0 {
			continue
		}
		sorted, err := SortByY(n.Data(), n.layout, s.order)
		if err != nil {
			return fmt.Errorf("batch: sort %s: %w", b, err)
		}
		n.replace(sorted)
	}
	return nil
}

func (s *sortedAccumulator) Flush(pass gpu.RenderPass, device gpu.Device, binder Binder, viewport common.Size) (FlushStats, error) {
	if err := s.Sort(); err != nil {
		return FlushStats{}, err
	}
	return s.instances.drawNodes(pass, device, binder, viewport, s.nodes[:])
}

func (s *sortedAccumulator) Release() {
	s.instances.release()
}
