package batch

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Binder binds the pipeline and bind groups for a batch state. Flush calls it whenever the state changes
// between consecutive non-empty nodes.
type Binder interface {
	Bind(pass gpu.RenderPass, key StateKey) error
}

// BinderFunc adapts a function to the Binder interface.
type BinderFunc func(pass gpu.RenderPass, key StateKey) error

// Bind calls f.
func (f BinderFunc) Bind(pass gpu.RenderPass, key StateKey) error {
	return f(pass, key)
}

// FlushStats reports the work a flush issued.
type FlushStats struct {
	DrawCalls int
	Instances int
	// ByVariant counts instances per pipeline variant.
	ByVariant map[string]int
}

func (s *FlushStats) add(o FlushStats) {
	s.DrawCalls += o.DrawCalls
	s.Instances += o.Instances
	if len(o.ByVariant) == 0 {
		return
	}
	if s.ByVariant == nil {
		s.ByVariant = make(map[string]int, len(o.ByVariant))
	}
	for k, v := range o.ByVariant {
		s.ByVariant[k] += v
	}
}

// quadIndices is the index count of the unit quad every instance is drawn as.
const quadIndices = 6

// instanceBuffer is the single GPU vertex buffer every node of one accumulator is written into.
type instanceBuffer struct {
	label  string
	slot   uint32
	buffer gpu.Buffer
}

// ensure recreates the buffer when size bytes no longer fit.
func (b *instanceBuffer) ensure(device gpu.Device, size uint64) error {
	if b.buffer != nil && b.buffer.Size() >= size {
		return nil
	}
	capacity := uint64(256)
	if b.buffer != nil {
		capacity = b.buffer.Size()
	}
	for capacity < size {
		capacity = uint64(common.GrowCapacity(int(capacity)))
	}
	capacity = common.CeilDiv(capacity, 4) * 4

	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label,
		Size:  capacity,
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("batch: recreate instance buffer %q at %d bytes: %w", b.label, capacity, err)
	}
	if b.buffer != nil {
		b.buffer.Release()
	}
	b.buffer = buf
	common.Logger().Debug("instance buffer recreated", "label", b.label, "bytes", capacity)
	return nil
}

func (b *instanceBuffer) release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

// drawNodes validates every node, uploads the non-empty ones back to back into the shared buffer and issues
// one instanced draw per node. Nothing is written or recorded when any node fails validation.
func (b *instanceBuffer) drawNodes(pass gpu.RenderPass, device gpu.Device, binder Binder, viewport common.Size, nodes []*Node) (FlushStats, error) {
	var stats FlushStats
	var total uint64
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return stats, err
		}
		total += uint64(n.size) * 4
	}
	if total == 0 {
		return stats, nil
	}
	if err := b.ensure(device, total); err != nil {
		return stats, err
	}

	full := common.ClipRect{Width: viewport.Width, Height: viewport.Height}
	var (
		offset    uint64
		last      StateKey
		bound     bool
		scissored bool
	)
	for _, n := range nodes {
		count := n.Counter()
		if count == 0 {
			continue
		}
		bytes := common.SliceToBytes(n.Data())
		if err := device.WriteBuffer(b.buffer, offset, bytes); err != nil {
			return stats, fmt.Errorf("batch: upload %q: %w", n.key.Variant, err)
		}

		if !bound || n.key != last {
			if !bound || n.key.Variant != last.Variant {
				if err := binder.Bind(pass, n.key); err != nil {
					return stats, err
				}
			}
			switch {
			case n.key.Clipped:
				pass.SetScissorRect(n.key.Clip.Intersect(full).XYWH())
				scissored = true
			case scissored:
				pass.SetScissorRect(full.XYWH())
				scissored = false
			}
			last, bound = n.key, true
		}

		pass.SetVertexBuffer(b.slot, b.buffer, offset, uint64(len(bytes)))
		pass.DrawIndexed(quadIndices, uint32(count), 0, 0, 0)

		stats.DrawCalls++
		stats.Instances += count
		if stats.ByVariant == nil {
			stats.ByVariant = make(map[string]int)
		}
		stats.ByVariant[n.key.Variant] += count
		offset += uint64(len(bytes))
	}
	return stats, nil
}
