package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// WholeSize binds or maps the remainder of a buffer.
const WholeSize = wgpu.WholeSize

// BindGroupEntry binds one resource. Exactly one of Buffer, TextureView or Sampler is set.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      Buffer
	Offset      uint64
	Size        uint64
	TextureView TextureView
	Sampler     Sampler
}

// BufferEntry binds the whole of buffer at binding.
func BufferEntry(binding uint32, buffer Buffer) BindGroupEntry {
	return BindGroupEntry{Binding: binding, Buffer: buffer, Size: WholeSize}
}

// ViewEntry binds a texture view at binding.
func ViewEntry(binding uint32, view TextureView) BindGroupEntry {
	return BindGroupEntry{Binding: binding, TextureView: view, Size: WholeSize}
}

// SamplerEntry binds a sampler at binding.
func SamplerEntry(binding uint32, sampler Sampler) BindGroupEntry {
	return BindGroupEntry{Binding: binding, Sampler: sampler, Size: WholeSize}
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// RenderPipelineDescriptor describes a render pipeline. Vertex and fragment stages share one module.
type RenderPipelineDescriptor struct {
	Label         string
	Layouts       []BindGroupLayout
	Module        ShaderModule
	VertexEntry   string
	FragmentEntry string
	Buffers       []wgpu.VertexBufferLayout
	Targets       []wgpu.ColorTargetState
	Primitive     wgpu.PrimitiveState
	DepthStencil  *wgpu.DepthStencilState
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label      string
	Layouts    []BindGroupLayout
	Module     ShaderModule
	EntryPoint string
}

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	View       TextureView
	LoadOp     wgpu.LoadOp
	StoreOp    wgpu.StoreOp
	ClearValue wgpu.Color
}

// DepthAttachment is the depth target of a render pass.
type DepthAttachment struct {
	View       TextureView
	LoadOp     wgpu.LoadOp
	StoreOp    wgpu.StoreOp
	ClearValue float32

	// ReadOnly disables depth writes for the whole pass.
	ReadOnly bool
}

// PassTimestamps asks a pass to write timestamps into two slots of a query set.
type PassTimestamps struct {
	QuerySet QuerySet
	Begin    uint32
	End      uint32
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []ColorAttachment
	Depth            *DepthAttachment
	Timestamps       *PassTimestamps
}

// ComputePassDescriptor describes a compute pass.
type ComputePassDescriptor struct {
	Label      string
	Timestamps *PassTimestamps
}
