// Package gpu is the narrow slice of the WebGPU command API the engine consumes. Every other engine
// package talks to these interfaces instead of the wgpu bindings directly, so batching, the bloom graph
// and the frame controller can be exercised against a recording device in tests.
//
// Enums and plain descriptors (formats, usages, blend states, layouts) are reused from the wgpu package;
// only descriptors that reference GPU objects are redeclared here in terms of the handle interfaces.
package gpu

import (
	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Releaser is implemented by every GPU handle.
type Releaser interface {
	// Release frees the underlying GPU object. Releasing twice is a no-op.
	Release()
}

// Buffer is a GPU buffer.
type Buffer interface {
	Releaser

	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// MapRead asynchronously maps [offset, offset+size) for reading. The callback receives a copy
	// of the mapped range (the buffer is unmapped before the callback returns) or the mapping error.
	// The callback runs from Device.Poll, never from MapRead itself.
	//
	// Parameters:
	//   - offset: byte offset of the range to map
	//   - size: byte size of the range to map
	//   - callback: invoked once with the copied bytes or an error
	//
	// Returns:
	//   - error: error if the map request could not be issued (e.g. the buffer is already mapping)
	MapRead(offset, size uint64, callback func(data []byte, err error)) error
}

// Texture is a GPU texture.
type Texture interface {
	Releaser

	// Size returns the base mip level size.
	Size() common.Size

	// Format returns the texel format.
	Format() wgpu.TextureFormat

	// MipLevelCount returns the number of mip levels.
	MipLevelCount() uint32

	// CreateView creates a view of the texture. A nil descriptor views every mip level.
	CreateView(desc *wgpu.TextureViewDescriptor) (TextureView, error)
}

// TextureView is a view over a subset of a texture.
type TextureView interface {
	Releaser
}

// Sampler is a texture sampler.
type Sampler interface {
	Releaser
}

// ShaderModule is a compiled WGSL module.
type ShaderModule interface {
	Releaser
}

// BindGroupLayout is the layout a BindGroup is created against.
type BindGroupLayout interface {
	Releaser
}

// BindGroup is a set of bound resources.
type BindGroup interface {
	Releaser
}

// RenderPipeline is a compiled render pipeline.
type RenderPipeline interface {
	Releaser
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline interface {
	Releaser
}

// QuerySet is a timestamp query set.
type QuerySet interface {
	Releaser

	// Count returns the number of queries in the set.
	Count() uint32
}

// CommandBuffer is a finished, submittable command list.
type CommandBuffer interface {
	Releaser
}

// RenderPass records draw commands.
type RenderPass interface {
	SetPipeline(pipeline RenderPipeline)
	SetBindGroup(index uint32, group BindGroup)
	SetVertexBuffer(slot uint32, buffer Buffer, offset, size uint64)
	SetIndexBuffer(buffer Buffer, format wgpu.IndexFormat, offset, size uint64)
	SetScissorRect(x, y, width, height uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	End() error
}

// ComputePass records compute dispatches.
type ComputePass interface {
	SetPipeline(pipeline ComputePipeline)
	SetBindGroup(index uint32, group BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End() error
}

// CommandEncoder records passes into a single command buffer.
type CommandEncoder interface {
	Releaser

	BeginRenderPass(desc *RenderPassDescriptor) RenderPass
	BeginComputePass(desc *ComputePassDescriptor) ComputePass

	// ResolveQuerySet writes count timestamps starting at first into destination at offset.
	ResolveQuerySet(set QuerySet, first, count uint32, destination Buffer, offset uint64) error

	// CopyBufferToBuffer copies size bytes between buffers.
	CopyBufferToBuffer(source Buffer, sourceOffset uint64, destination Buffer, destinationOffset uint64, size uint64) error

	// Finish closes the encoder and returns the recorded command buffer.
	Finish() (CommandBuffer, error)
}

// Device creates GPU objects and owns the submission queue.
type Device interface {
	CreateBuffer(desc *wgpu.BufferDescriptor) (Buffer, error)
	CreateTexture(desc *wgpu.TextureDescriptor) (Texture, error)
	CreateSampler(desc *wgpu.SamplerDescriptor) (Sampler, error)
	CreateShaderModule(label, source string) (ShaderModule, error)
	CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)
	CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error)
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// CreateQuerySet creates a timestamp query set. Fails when SupportsTimestamps is false.
	CreateQuerySet(label string, count uint32) (QuerySet, error)

	// SupportsTimestamps reports whether the device was created with timestamp queries enabled.
	SupportsTimestamps() bool

	// TimestampPeriod returns the number of nanoseconds per timestamp tick.
	TimestampPeriod() float32

	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	WriteTexture(texture Texture, data common.TextureStagingData) error
	Submit(buffers ...CommandBuffer)

	// Poll processes completed asynchronous work (buffer map callbacks) without blocking.
	Poll()
}

// Surface is the presentable swapchain.
type Surface interface {
	// Configure (re)creates the swapchain at the given size.
	Configure(size common.Size) error

	// Format returns the swapchain texel format. Valid after the first Configure.
	Format() wgpu.TextureFormat

	// AcquireView returns a view of the next swapchain image.
	AcquireView() (TextureView, error)

	// Present presents the image returned by the last AcquireView and releases it.
	Present()
}
