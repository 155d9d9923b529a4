package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrMapPending is returned by Buffer.MapRead while a previous map of the same buffer is unresolved.
var ErrMapPending = errors.New("gpu: buffer map already pending")

type wgpuBuffer struct {
	buffer  *wgpu.Buffer
	label   string
	size    uint64
	mu      sync.Mutex
	mapping bool
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.size }

func (b *wgpuBuffer) MapRead(offset, size uint64, callback func([]byte, error)) error {
	b.mu.Lock()
	if b.mapping {
		b.mu.Unlock()
		return ErrMapPending
	}
	b.mapping = true
	b.mu.Unlock()

	err := b.buffer.MapAsync(wgpu.MapModeRead, offset, size, func(status wgpu.BufferMapAsyncStatus) {
		defer func() {
			b.mu.Lock()
			b.mapping = false
			b.mu.Unlock()
		}()
		if status != wgpu.BufferMapAsyncStatusSuccess {
			callback(nil, fmt.Errorf("gpu: map %q failed with status %v", b.label, status))
			return
		}
		mapped := b.buffer.GetMappedRange(uint(offset), uint(size))
		data := make([]byte, len(mapped))
		copy(data, mapped)
		callback(data, b.buffer.Unmap())
	})
	if err != nil {
		b.mu.Lock()
		b.mapping = false
		b.mu.Unlock()
	}
	return err
}

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuTexture struct {
	texture *wgpu.Texture
	size    common.Size
	format  wgpu.TextureFormat
	mips    uint32
}

func (t *wgpuTexture) Size() common.Size          { return t.size }
func (t *wgpuTexture) Format() wgpu.TextureFormat { return t.format }
func (t *wgpuTexture) MipLevelCount() uint32      { return t.mips }

func (t *wgpuTexture) CreateView(desc *wgpu.TextureViewDescriptor) (TextureView, error) {
	view, err := t.texture.CreateView(desc)
	if err != nil {
		return nil, err
	}
	return &wgpuTextureView{view: view}, nil
}

func (t *wgpuTexture) Release() {
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

type wgpuTextureView struct {
	view *wgpu.TextureView
	// borrowed views belong to the swapchain and are released by Present.
	borrowed bool
}

func (v *wgpuTextureView) Release() {
	if v.view != nil && !v.borrowed {
		v.view.Release()
	}
	v.view = nil
}

type wgpuSampler struct{ sampler *wgpu.Sampler }

func (s *wgpuSampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

type wgpuShaderModule struct{ module *wgpu.ShaderModule }

func (m *wgpuShaderModule) Release() {
	if m.module != nil {
		m.module.Release()
		m.module = nil
	}
}

type wgpuBindGroupLayout struct{ layout *wgpu.BindGroupLayout }

func (l *wgpuBindGroupLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
}

type wgpuBindGroup struct{ group *wgpu.BindGroup }

func (g *wgpuBindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

type wgpuRenderPipeline struct{ pipeline *wgpu.RenderPipeline }

func (p *wgpuRenderPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

type wgpuComputePipeline struct{ pipeline *wgpu.ComputePipeline }

func (p *wgpuComputePipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

type wgpuQuerySet struct {
	set   *wgpu.QuerySet
	count uint32
}

func (q *wgpuQuerySet) Count() uint32 { return q.count }

func (q *wgpuQuerySet) Release() {
	if q.set != nil {
		q.set.Release()
		q.set = nil
	}
}

type wgpuCommandBuffer struct{ buffer *wgpu.CommandBuffer }

func (c *wgpuCommandBuffer) Release() {
	if c.buffer != nil {
		c.buffer.Release()
		c.buffer = nil
	}
}

type wgpuCommandEncoder struct {
	encoder *wgpu.CommandEncoder
}

func (e *wgpuCommandEncoder) BeginRenderPass(desc *RenderPassDescriptor) RenderPass {
	colors := make([]wgpu.RenderPassColorAttachment, len(desc.ColorAttachments))
	for i, c := range desc.ColorAttachments {
		colors[i] = wgpu.RenderPassColorAttachment{
			View:       c.View.(*wgpuTextureView).view,
			LoadOp:     c.LoadOp,
			StoreOp:    c.StoreOp,
			ClearValue: c.ClearValue,
		}
	}
	native := &wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: colors,
	}
	if d := desc.Depth; d != nil {
		native.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            d.View.(*wgpuTextureView).view,
			DepthLoadOp:     d.LoadOp,
			DepthStoreOp:    d.StoreOp,
			DepthClearValue: d.ClearValue,
			DepthReadOnly:   d.ReadOnly,
		}
	}
	w := e.beginTimestamp(desc.Timestamps)
	return &wgpuRenderPass{pass: e.encoder.BeginRenderPass(native), writes: w}
}

func (e *wgpuCommandEncoder) BeginComputePass(desc *ComputePassDescriptor) ComputePass {
	var native *wgpu.ComputePassDescriptor
	var w *passWrites
	if desc != nil {
		native = &wgpu.ComputePassDescriptor{Label: desc.Label}
		w = e.beginTimestamp(desc.Timestamps)
	}
	return &wgpuComputePass{pass: e.encoder.BeginComputePass(native), writes: w}
}

// passWrites brackets a pass with encoder-level timestamps. The pinned bindings have no per-pass
// timestamp writes, so the begin slot is written before the pass opens and the end slot after it ends.
type passWrites struct {
	encoder *wgpu.CommandEncoder
	set     *wgpu.QuerySet
	end     uint32
	err     error
}

func (e *wgpuCommandEncoder) beginTimestamp(ts *PassTimestamps) *passWrites {
	if ts == nil {
		return nil
	}
	w := &passWrites{encoder: e.encoder, set: ts.QuerySet.(*wgpuQuerySet).set, end: ts.End}
	w.err = e.encoder.WriteTimestamp(w.set, ts.Begin)
	return w
}

// finish writes the end slot. It must run after the pass has ended.
func (w *passWrites) finish() error {
	if w == nil {
		return nil
	}
	return errors.Join(w.err, w.encoder.WriteTimestamp(w.set, w.end))
}

func (e *wgpuCommandEncoder) ResolveQuerySet(set QuerySet, first, count uint32, destination Buffer, offset uint64) error {
	return e.encoder.ResolveQuerySet(set.(*wgpuQuerySet).set, first, count, destination.(*wgpuBuffer).buffer, offset)
}

func (e *wgpuCommandEncoder) CopyBufferToBuffer(source Buffer, sourceOffset uint64, destination Buffer, destinationOffset uint64, size uint64) error {
	return e.encoder.CopyBufferToBuffer(source.(*wgpuBuffer).buffer, sourceOffset, destination.(*wgpuBuffer).buffer, destinationOffset, size)
}

func (e *wgpuCommandEncoder) Finish() (CommandBuffer, error) {
	buffer, err := e.encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	return &wgpuCommandBuffer{buffer: buffer}, nil
}

func (e *wgpuCommandEncoder) Release() {
	if e.encoder != nil {
		e.encoder.Release()
		e.encoder = nil
	}
}

type wgpuRenderPass struct {
	pass   *wgpu.RenderPassEncoder
	writes *passWrites
}

func (p *wgpuRenderPass) SetPipeline(pipeline RenderPipeline) {
	p.pass.SetPipeline(pipeline.(*wgpuRenderPipeline).pipeline)
}

func (p *wgpuRenderPass) SetBindGroup(index uint32, group BindGroup) {
	p.pass.SetBindGroup(index, group.(*wgpuBindGroup).group, nil)
}

func (p *wgpuRenderPass) SetVertexBuffer(slot uint32, buffer Buffer, offset, size uint64) {
	p.pass.SetVertexBuffer(slot, buffer.(*wgpuBuffer).buffer, offset, size)
}

func (p *wgpuRenderPass) SetIndexBuffer(buffer Buffer, format wgpu.IndexFormat, offset, size uint64) {
	p.pass.SetIndexBuffer(buffer.(*wgpuBuffer).buffer, format, offset, size)
}

func (p *wgpuRenderPass) SetScissorRect(x, y, width, height uint32) {
	p.pass.SetScissorRect(x, y, width, height)
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *wgpuRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *wgpuRenderPass) End() error {
	err := p.pass.End()
	p.pass.Release()
	return errors.Join(err, p.writes.finish())
}

type wgpuComputePass struct {
	pass   *wgpu.ComputePassEncoder
	writes *passWrites
}

func (p *wgpuComputePass) SetPipeline(pipeline ComputePipeline) {
	p.pass.SetPipeline(pipeline.(*wgpuComputePipeline).pipeline)
}

func (p *wgpuComputePass) SetBindGroup(index uint32, group BindGroup) {
	p.pass.SetBindGroup(index, group.(*wgpuBindGroup).group, nil)
}

func (p *wgpuComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *wgpuComputePass) End() error {
	err := p.pass.End()
	p.pass.Release()
	return errors.Join(err, p.writes.finish())
}
