// Package gputest provides a recording gpu.Backend for tests. It never touches a real GPU: objects are
// plain structs, writes land in CPU byte slices, and every pass command is appended to Device.Calls so
// tests can assert on the exact command stream the engine produced.
package gputest

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Op names a recorded command.
type Op string

const (
	OpBeginRenderPass  Op = "BeginRenderPass"
	OpEndRenderPass    Op = "EndRenderPass"
	OpBeginComputePass Op = "BeginComputePass"
	OpEndComputePass   Op = "EndComputePass"
	OpSetPipeline      Op = "SetPipeline"
	OpSetBindGroup     Op = "SetBindGroup"
	OpSetVertexBuffer  Op = "SetVertexBuffer"
	OpSetIndexBuffer   Op = "SetIndexBuffer"
	OpSetScissorRect   Op = "SetScissorRect"
	OpDraw             Op = "Draw"
	OpDrawIndexed      Op = "DrawIndexed"
	OpDispatch         Op = "Dispatch"
	OpWriteBuffer      Op = "WriteBuffer"
	OpResolveQuerySet  Op = "ResolveQuerySet"
	OpCopyBuffer       Op = "CopyBufferToBuffer"
	OpSubmit           Op = "Submit"
)

// Call is one recorded command. Label is the label of the pipeline, bind group, buffer or pass the command
// refers to; Args holds its numeric arguments in declaration order.
type Call struct {
	Op    Op
	Label string
	Args  []uint64
}

// Device is a recording gpu.Backend. The zero value is not usable; call NewDevice.
type Device struct {
	mu sync.Mutex

	// Calls is the recorded command stream, in order.
	Calls []Call

	// Fail maps an object label to the error its creation should return.
	Fail map[string]error

	// Timestamps enables timestamp query support.
	Timestamps bool

	Buffers   []*Buffer
	Textures  []*Texture
	Samplers  []*Handle
	Shaders   []*Shader
	Layouts   []*Handle
	Groups    []*BindGroup
	Pipelines []*Pipeline
	Encoders  []*Encoder
	Queries   []*QuerySet

	// RenderPasses and ComputePasses hold every begun pass descriptor, in order.
	RenderPasses  []*gpu.RenderPassDescriptor
	ComputePasses []*gpu.ComputePassDescriptor

	Configured []common.Size
	Presented  int
	Submits    int

	pendingMaps []func()
	format      wgpu.TextureFormat
}

var _ gpu.Backend = &Device{}

// NewDevice creates a recording device with timestamp support enabled.
func NewDevice() *Device {
	return &Device{
		Fail:       map[string]error{},
		Timestamps: true,
		format:     wgpu.TextureFormatBGRA8Unorm,
	}
}

func (d *Device) record(op Op, label string, args ...uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{Op: op, Label: label, Args: args})
}

func (d *Device) fail(label string) error {
	if err, ok := d.Fail[label]; ok {
		return err
	}
	return nil
}

// CallsOf returns the recorded calls with the given op, in order.
func (d *Device) CallsOf(op Op) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the recorded command stream and pass descriptors.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = nil
	d.RenderPasses = nil
	d.ComputePasses = nil
}

// Handle is a generic releasable object.
type Handle struct {
	Label    string
	Released bool
}

func (h *Handle) Release() { h.Released = true }

// Buffer is a CPU-backed buffer.
type Buffer struct {
	Handle
	Usage wgpu.BufferUsage
	Data  []byte

	device  *Device
	mapping bool
}

func (b *Buffer) Label() string { return b.Handle.Label }
func (b *Buffer) Size() uint64  { return uint64(len(b.Data)) }

func (b *Buffer) MapRead(offset, size uint64, callback func([]byte, error)) error {
	if b.mapping {
		return gpu.ErrMapPending
	}
	b.mapping = true
	b.device.mu.Lock()
	b.device.pendingMaps = append(b.device.pendingMaps, func() {
		b.mapping = false
		if size == gpu.WholeSize {
			size = uint64(len(b.Data)) - offset
		}
		callback(slices.Clone(b.Data[offset:offset+size]), nil)
	})
	b.device.mu.Unlock()
	return nil
}

// Texture is a fake texture that tracks its views.
type Texture struct {
	Handle
	Desc  wgpu.TextureDescriptor
	Views []*TextureView
}

func (t *Texture) Size() common.Size {
	return common.Size{Width: t.Desc.Size.Width, Height: t.Desc.Size.Height}
}
func (t *Texture) Format() wgpu.TextureFormat { return t.Desc.Format }
func (t *Texture) MipLevelCount() uint32      { return max(t.Desc.MipLevelCount, 1) }

func (t *Texture) CreateView(desc *wgpu.TextureViewDescriptor) (gpu.TextureView, error) {
	v := &TextureView{Texture: t, Mip: -1}
	v.Handle.Label = t.Handle.Label
	if desc != nil && desc.MipLevelCount == 1 {
		v.Mip = int(desc.BaseMipLevel)
		v.Handle.Label = fmt.Sprintf("%s@%d", t.Handle.Label, desc.BaseMipLevel)
	}
	t.Views = append(t.Views, v)
	return v, nil
}

// TextureView is a fake view. Mip is -1 for a view over every level.
type TextureView struct {
	Handle
	Texture *Texture
	Mip     int
}

// Shader records its source.
type Shader struct {
	Handle
	Source string
}

// BindGroup records its entries.
type BindGroup struct {
	Handle
	Desc gpu.BindGroupDescriptor
}

// Pipeline is a fake render or compute pipeline.
type Pipeline struct {
	Handle
	Render  *gpu.RenderPipelineDescriptor
	Compute *gpu.ComputePipelineDescriptor
}

// QuerySet holds the tick values ResolveQuerySet copies out.
type QuerySet struct {
	Handle
	Values []uint64
}

func (q *QuerySet) Count() uint32 { return uint32(len(q.Values)) }

func (d *Device) CreateBuffer(desc *wgpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	b := &Buffer{Handle: Handle{Label: desc.Label}, Usage: desc.Usage, Data: make([]byte, desc.Size), device: d}
	d.mu.Lock()
	d.Buffers = append(d.Buffers, b)
	d.mu.Unlock()
	return b, nil
}

func (d *Device) CreateTexture(desc *wgpu.TextureDescriptor) (gpu.Texture, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	t := &Texture{Handle: Handle{Label: desc.Label}, Desc: *desc}
	d.mu.Lock()
	d.Textures = append(d.Textures, t)
	d.mu.Unlock()
	return t, nil
}

func (d *Device) CreateSampler(desc *wgpu.SamplerDescriptor) (gpu.Sampler, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	s := &Handle{Label: desc.Label}
	d.mu.Lock()
	d.Samplers = append(d.Samplers, s)
	d.mu.Unlock()
	return s, nil
}

func (d *Device) CreateShaderModule(label, source string) (gpu.ShaderModule, error) {
	if err := d.fail(label); err != nil {
		return nil, err
	}
	s := &Shader{Handle: Handle{Label: label}, Source: source}
	d.mu.Lock()
	d.Shaders = append(d.Shaders, s)
	d.mu.Unlock()
	return s, nil
}

func (d *Device) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	l := &Handle{Label: desc.Label}
	d.mu.Lock()
	d.Layouts = append(d.Layouts, l)
	d.mu.Unlock()
	return l, nil
}

func (d *Device) CreateBindGroup(desc *gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	g := &BindGroup{Handle: Handle{Label: desc.Label}, Desc: *desc}
	d.mu.Lock()
	d.Groups = append(d.Groups, g)
	d.mu.Unlock()
	return g, nil
}

func (d *Device) CreateRenderPipeline(desc *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	p := &Pipeline{Handle: Handle{Label: desc.Label}, Render: desc}
	d.mu.Lock()
	d.Pipelines = append(d.Pipelines, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Device) CreateComputePipeline(desc *gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	if err := d.fail(desc.Label); err != nil {
		return nil, err
	}
	p := &Pipeline{Handle: Handle{Label: desc.Label}, Compute: desc}
	d.mu.Lock()
	d.Pipelines = append(d.Pipelines, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Device) CreateCommandEncoder(label string) (gpu.CommandEncoder, error) {
	if err := d.fail(label); err != nil {
		return nil, err
	}
	e := &Encoder{Handle: Handle{Label: label}, device: d}
	d.mu.Lock()
	d.Encoders = append(d.Encoders, e)
	d.mu.Unlock()
	return e, nil
}

func (d *Device) CreateQuerySet(label string, count uint32) (gpu.QuerySet, error) {
	if !d.Timestamps {
		return nil, fmt.Errorf("gputest: timestamps disabled")
	}
	if err := d.fail(label); err != nil {
		return nil, err
	}
	q := &QuerySet{Handle: Handle{Label: label}, Values: make([]uint64, count)}
	d.mu.Lock()
	d.Queries = append(d.Queries, q)
	d.mu.Unlock()
	return q, nil
}

func (d *Device) SupportsTimestamps() bool { return d.Timestamps }
func (d *Device) TimestampPeriod() float32 { return 1 }

func (d *Device) WriteBuffer(buffer gpu.Buffer, offset uint64, data []byte) error {
	b := buffer.(*Buffer)
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.Handle.Label, len(b.Data))
	}
	copy(b.Data[offset:], data)
	d.record(OpWriteBuffer, b.Handle.Label, offset, uint64(len(data)))
	return nil
}

func (d *Device) WriteTexture(texture gpu.Texture, data common.TextureStagingData) error {
	return nil
}

func (d *Device) Submit(buffers ...gpu.CommandBuffer) {
	d.Submits++
	d.record(OpSubmit, "", uint64(len(buffers)))
}

// Poll runs every pending map callback.
func (d *Device) Poll() {
	d.mu.Lock()
	pending := d.pendingMaps
	d.pendingMaps = nil
	d.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// PendingMaps returns the number of map callbacks waiting for Poll.
func (d *Device) PendingMaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendingMaps)
}

func (d *Device) Configure(size common.Size) error {
	if size.Empty() {
		return fmt.Errorf("gputest: empty surface size")
	}
	d.Configured = append(d.Configured, size)
	return nil
}

func (d *Device) Format() wgpu.TextureFormat { return d.format }

func (d *Device) AcquireView() (gpu.TextureView, error) {
	return &TextureView{Handle: Handle{Label: "surface"}, Mip: -1}, nil
}

func (d *Device) Present() { d.Presented++ }

func (d *Device) Release() {}

// Encoder records passes into the device command stream.
type Encoder struct {
	Handle
	Finished bool
	device   *Device
}

func (e *Encoder) BeginRenderPass(desc *gpu.RenderPassDescriptor) gpu.RenderPass {
	e.device.record(OpBeginRenderPass, desc.Label)
	e.device.mu.Lock()
	e.device.RenderPasses = append(e.device.RenderPasses, desc)
	e.device.mu.Unlock()
	return &renderPass{device: e.device, label: desc.Label}
}

func (e *Encoder) BeginComputePass(desc *gpu.ComputePassDescriptor) gpu.ComputePass {
	label := ""
	if desc != nil {
		label = desc.Label
	}
	e.device.record(OpBeginComputePass, label)
	e.device.mu.Lock()
	e.device.ComputePasses = append(e.device.ComputePasses, desc)
	e.device.mu.Unlock()
	return &computePass{device: e.device, label: label}
}

func (e *Encoder) ResolveQuerySet(set gpu.QuerySet, first, count uint32, destination gpu.Buffer, offset uint64) error {
	q := set.(*QuerySet)
	b := destination.(*Buffer)
	for i := uint32(0); i < count; i++ {
		binary.LittleEndian.PutUint64(b.Data[offset+uint64(i)*8:], q.Values[first+i])
	}
	e.device.record(OpResolveQuerySet, q.Handle.Label, uint64(first), uint64(count))
	return nil
}

func (e *Encoder) CopyBufferToBuffer(source gpu.Buffer, sourceOffset uint64, destination gpu.Buffer, destinationOffset uint64, size uint64) error {
	src, dst := source.(*Buffer), destination.(*Buffer)
	copy(dst.Data[destinationOffset:destinationOffset+size], src.Data[sourceOffset:sourceOffset+size])
	e.device.record(OpCopyBuffer, dst.Handle.Label, size)
	return nil
}

func (e *Encoder) Finish() (gpu.CommandBuffer, error) {
	e.Finished = true
	return &Handle{Label: e.Handle.Label}, nil
}

type renderPass struct {
	device *Device
	label  string
}

func (p *renderPass) SetPipeline(pipeline gpu.RenderPipeline) {
	p.device.record(OpSetPipeline, pipeline.(*Pipeline).Handle.Label)
}

func (p *renderPass) SetBindGroup(index uint32, group gpu.BindGroup) {
	p.device.record(OpSetBindGroup, group.(*BindGroup).Handle.Label, uint64(index))
}

func (p *renderPass) SetVertexBuffer(slot uint32, buffer gpu.Buffer, offset, size uint64) {
	p.device.record(OpSetVertexBuffer, buffer.Label(), uint64(slot), offset, size)
}

func (p *renderPass) SetIndexBuffer(buffer gpu.Buffer, format wgpu.IndexFormat, offset, size uint64) {
	p.device.record(OpSetIndexBuffer, buffer.Label(), offset, size)
}

func (p *renderPass) SetScissorRect(x, y, width, height uint32) {
	p.device.record(OpSetScissorRect, p.label, uint64(x), uint64(y), uint64(width), uint64(height))
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.device.record(OpDraw, p.label, uint64(vertexCount), uint64(instanceCount))
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.device.record(OpDrawIndexed, p.label, uint64(indexCount), uint64(instanceCount), uint64(firstInstance))
}

func (p *renderPass) End() error {
	p.device.record(OpEndRenderPass, p.label)
	return nil
}

type computePass struct {
	device *Device
	label  string
}

func (p *computePass) SetPipeline(pipeline gpu.ComputePipeline) {
	p.device.record(OpSetPipeline, pipeline.(*Pipeline).Handle.Label)
}

func (p *computePass) SetBindGroup(index uint32, group gpu.BindGroup) {
	p.device.record(OpSetBindGroup, group.(*BindGroup).Handle.Label, uint64(index))
}

func (p *computePass) DispatchWorkgroups(x, y, z uint32) {
	p.device.record(OpDispatch, p.label, uint64(x), uint64(y), uint64(z))
}

func (p *computePass) End() error {
	p.device.record(OpEndComputePass, p.label)
	return nil
}
