package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// AlphaBlend is straight alpha blending. Used on a transparent target it leaves premultiplied color behind.
var AlphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorSrcAlpha,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// AdditiveBlend sums every fragment into the target.
var AdditiveBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOne,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOne,
		Operation: wgpu.BlendOperationAdd,
	},
}

// pipeline is the implementation of the Pipeline interface.
// It holds the GPU pipeline object and the configuration it was created from, for both render and compute pipelines.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or render
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used as its debug label and cache key
	pipelineKey string

	// module is the reflected WGSL module the entry points belong to
	module shader.Shader
	// entry is the fragment entry point for render pipelines and the compute entry point for compute pipelines
	entry string
	// instanceStruct names the WGSL struct whose @location fields form the per-instance vertex buffer, or ""
	instanceStruct string

	// layouts are the bind group layouts, one per @group index. ownLayouts is true when Create made them.
	layouts    []gpu.BindGroupLayout
	ownLayouts bool

	renderPipeline  gpu.RenderPipeline
	computePipeline gpu.ComputePipeline

	// The following properties are used to configure the pipeline during creation and can be toggled/set with the builder options.
	// These are only used for render pipelines, compute pipelines still set defaults but do not utilize them.

	targetFormat      wgpu.TextureFormat
	depthFormat       wgpu.TextureFormat
	depthTestEnabled  bool
	depthWriteEnabled bool
	blendEnabled      bool
	cullMode          wgpu.CullMode
	topology          wgpu.PrimitiveTopology
	frontFace         wgpu.FrontFace
	writeMask         wgpu.ColorWriteMask
	blendState        *wgpu.BlendState
}

// Pipeline is a render or compute pipeline built from one reflected shader module. It holds all configuration
// state required for pipeline creation including target, depth, blend, cull and topology settings.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the module the pipeline is built from.
	Shader() shader.Shader

	// Entry returns the fragment entry point of a render pipeline or the compute entry point of a compute pipeline.
	Entry() string

	// Layouts returns the bind group layouts, indexed by @group. Valid after Create.
	Layouts() []gpu.BindGroupLayout

	// Layout returns the bind group layout of one group. Valid after Create.
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - gpu.BindGroupLayout: the layout
	Layout(group int) gpu.BindGroupLayout

	// Render returns the compiled render pipeline, or nil for compute pipelines and before Create.
	Render() gpu.RenderPipeline

	// Compute returns the compiled compute pipeline, or nil for render pipelines and before Create.
	Compute() gpu.ComputePipeline

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	DepthWriteEnabled() bool

	// BlendEnabled returns whether blending is enabled for this pipeline.
	BlendEnabled() bool

	// BlendState returns the blend state configured for this pipeline.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state for this pipeline, or nil if blending is not enabled
	BlendState() *wgpu.BlendState

	// Create builds the bind group layouts (unless shared layouts were supplied) and the GPU pipeline.
	//
	// Parameters:
	//   - device: the device to create on
	//   - module: the compiled module of Shader()
	//
	// Returns:
	//   - error: error if a layout or the pipeline could not be created
	Create(device gpu.Device, module gpu.ShaderModule) error

	// Release frees the pipeline and the layouts it created.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:       pipelineKey,
		pipelineType:      pipelineType,
		targetFormat:      wgpu.TextureFormatRGBA8Unorm,
		depthFormat:       wgpu.TextureFormatUndefined,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		blendEnabled:      false,
		cullMode:          wgpu.CullModeNone,
		topology:          wgpu.PrimitiveTopologyTriangleList,
		frontFace:         wgpu.FrontFaceCCW,
		writeMask:         wgpu.ColorWriteMaskAll,
		blendState:        &AlphaBlend,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType             { return p.pipelineType }
func (p *pipeline) PipelineKey() string            { return p.pipelineKey }
func (p *pipeline) Shader() shader.Shader          { return p.module }
func (p *pipeline) Entry() string                  { return p.entry }
func (p *pipeline) Layouts() []gpu.BindGroupLayout { return p.layouts }
func (p *pipeline) Render() gpu.RenderPipeline     { return p.renderPipeline }
func (p *pipeline) Compute() gpu.ComputePipeline   { return p.computePipeline }
func (p *pipeline) DepthTestEnabled() bool         { return p.depthTestEnabled }
func (p *pipeline) DepthWriteEnabled() bool        { return p.depthWriteEnabled }
func (p *pipeline) BlendEnabled() bool             { return p.blendEnabled }

func (p *pipeline) Layout(group int) gpu.BindGroupLayout {
	if group < 0 || group >= len(p.layouts) {
		panic(fmt.Sprintf("pipeline %q: no bind group layout for group %d", p.pipelineKey, group))
	}
	return p.layouts[group]
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	if !p.blendEnabled {
		return nil
	}
	return p.blendState
}

func (p *pipeline) Create(device gpu.Device, module gpu.ShaderModule) error {
	if p.module == nil {
		return fmt.Errorf("pipeline %q: no shader set", p.pipelineKey)
	}
	if p.layouts == nil {
		if err := p.createLayouts(device); err != nil {
			return err
		}
	}

	switch p.pipelineType {
	case PipelineTypeCompute:
		if _, ok := p.module.WorkgroupSize(p.entry); !ok {
			return fmt.Errorf("pipeline %q: %q is not a compute entry point of %s", p.pipelineKey, p.entry, p.module.Name())
		}
		created, err := device.CreateComputePipeline(&gpu.ComputePipelineDescriptor{
			Label:      p.pipelineKey,
			Layouts:    p.layouts,
			Module:     module,
			EntryPoint: p.entry,
		})
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
		}
		p.computePipeline = created
	case PipelineTypeRender:
		desc, err := p.renderDescriptor(module)
		if err != nil {
			return err
		}
		created, err := device.CreateRenderPipeline(desc)
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
		}
		p.renderPipeline = created
	default:
		return fmt.Errorf("pipeline %q: unknown pipeline type %d", p.pipelineKey, p.pipelineType)
	}
	return nil
}

// createLayouts creates one layout per reflected group.
func (p *pipeline) createLayouts(device gpu.Device) error {
	layouts, err := CreateLayouts(device, p.module)
	if err != nil {
		return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
	}
	p.layouts = layouts
	p.ownLayouts = true
	return nil
}

// CreateLayouts creates one bind group layout per reflected group of s, so several pipelines built from the
// same module can share them through WithLayouts. Groups must be numbered from zero without gaps. Nothing is
// left allocated on error.
//
// Parameters:
//   - device: the device to create on
//   - s: the reflected module
//
// Returns:
//   - []gpu.BindGroupLayout: the layouts, indexed by @group
//   - error: error if a group is skipped or a layout could not be created
func CreateLayouts(device gpu.Device, s shader.Shader) ([]gpu.BindGroupLayout, error) {
	groups := s.Groups()
	layouts := make([]gpu.BindGroupLayout, 0, len(groups))
	release := func() {
		for _, l := range layouts {
			l.Release()
		}
	}
	for i, g := range groups {
		if g != i {
			release()
			return nil, fmt.Errorf("%s skips bind group %d", s.Name(), i)
		}
		desc, _ := s.BindGroupLayout(g)
		layout, err := device.CreateBindGroupLayout(&desc)
		if err != nil {
			release()
			return nil, err
		}
		layouts = append(layouts, layout)
	}
	return layouts, nil
}

func (p *pipeline) renderDescriptor(module gpu.ShaderModule) (*gpu.RenderPipelineDescriptor, error) {
	if p.module.VertexEntry() == "" {
		return nil, fmt.Errorf("pipeline %q: %s has no vertex entry point", p.pipelineKey, p.module.Name())
	}
	target := wgpu.ColorTargetState{Format: p.targetFormat, WriteMask: p.writeMask}
	if p.blendEnabled {
		target.Blend = p.blendState
	}

	desc := &gpu.RenderPipelineDescriptor{
		Label:         p.pipelineKey,
		Layouts:       p.layouts,
		Module:        module,
		VertexEntry:   p.module.VertexEntry(),
		FragmentEntry: p.entry,
		Targets:       []wgpu.ColorTargetState{target},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.topology,
			FrontFace: p.frontFace,
			CullMode:  p.cullMode,
		},
	}
	if p.instanceStruct != "" {
		layout, ok := p.module.InstanceLayout(p.instanceStruct)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: %s has no instance struct %q", p.pipelineKey, p.module.Name(), p.instanceStruct)
		}
		desc.Buffers = []wgpu.VertexBufferLayout{layout}
	}
	if p.depthFormat != wgpu.TextureFormatUndefined {
		depthCompare := wgpu.CompareFunctionLessEqual
		if !p.depthTestEnabled {
			depthCompare = wgpu.CompareFunctionAlways
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            p.depthFormat,
			DepthWriteEnabled: p.depthWriteEnabled,
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}
	return desc, nil
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	if p.ownLayouts {
		for _, l := range p.layouts {
			l.Release()
		}
		p.layouts = nil
	}
}
