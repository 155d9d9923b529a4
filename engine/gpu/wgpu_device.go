package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// Backend is a Device that can also present to a window surface.
type Backend interface {
	Device
	Surface
	Releaser
}

// PresentMode controls how frames are delivered to the display.
type PresentMode int

const (
	// PresentModeVSync synchronizes presentation with the display refresh rate.
	PresentModeVSync PresentMode = iota
	// PresentModeUncapped presents immediately without waiting for vertical blank.
	PresentModeUncapped
)

// wgpuBackendImpl implements Backend on top of the cogentcore WebGPU bindings.
type wgpuBackendImpl struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   PresentMode
	forceFallback bool
	timestamps    bool
	wantTimestamp bool

	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
}

var _ Backend = &wgpuBackendImpl{}

// NewWGPUBackend requests an adapter and device compatible with the given surface.
// The calling goroutine is locked to its OS thread, as the native surface requires.
//
// Parameters:
//   - surfaceDescriptor: platform surface descriptor from the window
//   - options: functional options to configure the backend
//
// Returns:
//   - Backend: the ready device and surface
//   - error: error if no adapter or device could be acquired
func NewWGPUBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, options ...BackendBuilderOption) (Backend, error) {
	if surfaceDescriptor == nil {
		return nil, errors.New("gpu: NewWGPUBackend requires a surface descriptor")
	}
	runtime.LockOSThread()

	b := &wgpuBackendImpl{
		mu:            &sync.Mutex{},
		instance:      wgpu.CreateInstance(nil),
		presentMode:   PresentModeVSync,
		wantTimestamp: true,
	}
	for _, opt := range options {
		opt(b)
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	adapter, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallback,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}
	b.adapter = adapter

	var features []wgpu.FeatureName
	if b.wantTimestamp && adapter.HasFeature(wgpu.FeatureNameTimestampQuery) {
		features = append(features, wgpu.FeatureNameTimestampQuery)
		b.timestamps = true
	}

	limits := wgpu.DefaultLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "oxy2d device",
		RequiredFeatures: features,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: request device: %w", err)
	}
	b.device = device
	b.queue = device.GetQueue()
	common.Logger().Info("gpu device ready", "timestamps", b.timestamps, "fallback", b.forceFallback)
	return b, nil
}

func (b *wgpuBackendImpl) Configure(size common.Size) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size.Empty() {
		return fmt.Errorf("gpu: cannot configure surface of size %dx%d", size.Width, size.Height)
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return errors.New("gpu: surface reports no formats")
	}
	b.surfaceFormat = capabilities.Formats[0]

	mode := wgpu.PresentModeFifo
	if b.presentMode == PresentModeUncapped {
		mode = wgpu.PresentModeImmediate
	}
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       size.Width,
		Height:      size.Height,
		PresentMode: mode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuBackendImpl) Format() wgpu.TextureFormat {
	return b.surfaceFormat
}

func (b *wgpuBackendImpl) AcquireView() (TextureView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// An aborted frame never presents its image; drop it before acquiring the next one.
	if b.frameSurface != nil {
		b.frameView.Release()
		b.frameSurface.Release()
		b.frameView, b.frameSurface = nil, nil
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}
	b.frameSurface = surfaceTexture
	b.frameView = view
	// The swapchain view is owned by the backend until Present.
	return &wgpuTextureView{view: view, borrowed: true}, nil
}

func (b *wgpuBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return
	}
	b.surface.Present()
	b.frameView.Release()
	b.frameSurface.Release()
	b.frameView = nil
	b.frameSurface = nil
}

func (b *wgpuBackendImpl) CreateBuffer(desc *wgpu.BufferDescriptor) (Buffer, error) {
	buf, err := b.device.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", desc.Label, err)
	}
	return &wgpuBuffer{buffer: buf, label: desc.Label, size: desc.Size}, nil
}

func (b *wgpuBackendImpl) CreateTexture(desc *wgpu.TextureDescriptor) (Texture, error) {
	tex, err := b.device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %q: %w", desc.Label, err)
	}
	return &wgpuTexture{
		texture: tex,
		size:    common.Size{Width: desc.Size.Width, Height: desc.Size.Height},
		format:  desc.Format,
		mips:    max(desc.MipLevelCount, 1),
	}, nil
}

func (b *wgpuBackendImpl) CreateSampler(desc *wgpu.SamplerDescriptor) (Sampler, error) {
	samp, err := b.device.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler %q: %w", desc.Label, err)
	}
	return &wgpuSampler{sampler: samp}, nil
}

func (b *wgpuBackendImpl) CreateShaderModule(label, source string) (ShaderModule, error) {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader %q: %w", label, err)
	}
	return &wgpuShaderModule{module: module}, nil
}

func (b *wgpuBackendImpl) CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	layout, err := b.device.CreateBindGroupLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group layout %q: %w", desc.Label, err)
	}
	return &wgpuBindGroupLayout{layout: layout}, nil
}

func (b *wgpuBackendImpl) CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error) {
	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{
			Binding: e.Binding,
			Offset:  e.Offset,
			Size:    e.Size,
		}
		switch {
		case e.Buffer != nil:
			entry.Buffer = e.Buffer.(*wgpuBuffer).buffer
		case e.TextureView != nil:
			entry.TextureView = e.TextureView.(*wgpuTextureView).view
		case e.Sampler != nil:
			entry.Sampler = e.Sampler.(*wgpuSampler).sampler
		default:
			return nil, fmt.Errorf("gpu: bind group %q entry %d binds nothing", desc.Label, e.Binding)
		}
		entries[i] = entry
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  desc.Layout.(*wgpuBindGroupLayout).layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %q: %w", desc.Label, err)
	}
	return &wgpuBindGroup{group: group}, nil
}

// pipelineLayout merges the handle layouts into a pipeline layout.
func (b *wgpuBackendImpl) pipelineLayout(label string, layouts []BindGroupLayout) (*wgpu.PipelineLayout, error) {
	native := make([]*wgpu.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		native[i] = l.(*wgpuBindGroupLayout).layout
	}
	return b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + " Layout",
		BindGroupLayouts: native,
	})
}

func (b *wgpuBackendImpl) CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error) {
	layout, err := b.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, fmt.Errorf("gpu: pipeline layout %q: %w", desc.Label, err)
	}
	defer layout.Release()

	module := desc.Module.(*wgpuShaderModule).module
	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.Buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets:    desc.Targets,
		},
		Primitive:    desc.Primitive,
		DepthStencil: desc.DepthStencil,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create render pipeline %q: %w", desc.Label, err)
	}
	return &wgpuRenderPipeline{pipeline: created}, nil
}

func (b *wgpuBackendImpl) CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error) {
	layout, err := b.pipelineLayout(desc.Label, desc.Layouts)
	if err != nil {
		return nil, fmt.Errorf("gpu: pipeline layout %q: %w", desc.Label, err)
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     desc.Module.(*wgpuShaderModule).module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create compute pipeline %q: %w", desc.Label, err)
	}
	return &wgpuComputePipeline{pipeline: created}, nil
}

func (b *wgpuBackendImpl) CreateCommandEncoder(label string) (CommandEncoder, error) {
	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	return &wgpuCommandEncoder{encoder: encoder}, nil
}

func (b *wgpuBackendImpl) CreateQuerySet(label string, count uint32) (QuerySet, error) {
	if !b.timestamps {
		return nil, errors.New("gpu: device does not support timestamp queries")
	}
	set, err := b.device.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Label: label,
		Type:  wgpu.QueryTypeTimestamp,
		Count: count,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create query set %q: %w", label, err)
	}
	return &wgpuQuerySet{set: set, count: count}, nil
}

func (b *wgpuBackendImpl) SupportsTimestamps() bool {
	return b.timestamps
}

// TimestampPeriod is one: WebGPU timestamps are already in nanoseconds.
func (b *wgpuBackendImpl) TimestampPeriod() float32 {
	return 1
}

func (b *wgpuBackendImpl) WriteBuffer(buffer Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return b.queue.WriteBuffer(buffer.(*wgpuBuffer).buffer, offset, data)
}

func (b *wgpuBackendImpl) WriteTexture(texture Texture, data common.TextureStagingData) error {
	tex := texture.(*wgpuTexture)
	return b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (b *wgpuBackendImpl) Submit(buffers ...CommandBuffer) {
	native := make([]*wgpu.CommandBuffer, len(buffers))
	for i, cb := range buffers {
		native[i] = cb.(*wgpuCommandBuffer).buffer
	}
	b.queue.Submit(native...)
}

func (b *wgpuBackendImpl) Poll() {
	b.device.Poll(false, nil)
}

func (b *wgpuBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
	if b.device != nil {
		b.queue.Release()
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
