package bloom

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	bgp "github.com/Carmen-Shannon/oxy2d/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy2d/engine/shader"
	"github.com/Carmen-Shannon/oxy2d/engine/stage"
	"github.com/cogentcore/webgpu/wgpu"
	lru "github.com/hashicorp/golang-lru/v2"
)

const bufferParams = "bloom.params"

// paramsUniformSize is the WGSL BloomParams struct.
const paramsUniformSize = 16

// Format is the texel format of every bloom texture.
const Format = wgpu.TextureFormatRGBA16Float

// Graph is the bloom stage. CreatePipeline builds one compute pipeline per pass type and generates the
// descriptor list; UsePipeline dispatches the whole list in one compute pass.
type Graph interface {
	stage.Stage

	// Passes returns the number of blur pairs N.
	Passes() int

	// Descriptors returns the Generate list followed by the present descriptor.
	Descriptors() []Descriptor

	// CacheLen returns the number of cached bind groups.
	CacheLen() int
}

// cacheKey identifies a bind group: bind groups of an older registry generation reference released
// textures and are never returned.
type cacheKey struct {
	index      int
	generation uint64
}

// graph is the implementation of the Graph interface.
type graph struct {
	passes    int
	cacheSize int

	ctx   *stage.Context
	descs []Descriptor
	// providers holds one provider per descriptor, by Index.
	providers []bgp.BindGroupProvider
	pipelines [passTypeCount]pipeline.Pipeline
	workgroup [passTypeCount][3]uint32

	cache *lru.Cache[cacheKey, gpu.BindGroup]
}

var _ Graph = &graph{}

// NewGraph creates the bloom stage.
//
// Parameters:
//   - passes: the number of blur pairs N, in [1, config.MaxBloomPasses]
//   - options: functional options
//
// Returns:
//   - Graph: the stage
func NewGraph(passes int, options ...GraphBuilderOption) Graph {
	if passes < 1 {
		panic(fmt.Sprintf("bloom: NewGraph requires at least one pass, got %d", passes))
	}
	g := &graph{
		passes:    passes,
		cacheSize: Count(passes) + 1,
	}
	for _, opt := range options {
		opt(g)
	}
	g.descs = append(Generate(passes), PresentDescriptor(passes))
	return g
}

func (g *graph) Name() string              { return stage.NameBloom }
func (g *graph) Passes() int               { return g.passes }
func (g *graph) Descriptors() []Descriptor { return g.descs }
func (g *graph) Clear()                    {}

func (g *graph) CacheLen() int {
	if g.cache == nil {
		return 0
	}
	return g.cache.Len()
}

// chainTarget describes the half resolution chain textures. Each dimension is at least 2^(N-1) pixels
// so that all N levels exist at any output size.
func (g *graph) chainTarget(size common.Size) wgpu.TextureDescriptor {
	floor := uint32(1) << (g.passes - 1)
	return storageTarget(common.Size{
		Width:  max(size.Width/2, floor),
		Height: max(size.Height/2, floor),
	}, uint32(g.passes))
}

func outputTarget(size common.Size) wgpu.TextureDescriptor {
	return storageTarget(size, 1)
}

func storageTarget(size common.Size, mips uint32) wgpu.TextureDescriptor {
	return wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: size.Width, Height: size.Height, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        Format,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	}
}

func (g *graph) CreateTargets(ctx *stage.Context) error {
	for _, name := range []string{TextureChain, TextureScratch, TextureUp} {
		if _, err := ctx.Registry.RegisterResolutionTexture(name, g.chainTarget, true); err != nil {
			return err
		}
	}
	_, err := ctx.Registry.RegisterResolutionTexture(TextureOutput, outputTarget, true)
	return err
}

func (g *graph) CreatePipeline(ctx *stage.Context) error {
	g.ctx = ctx
	type entry struct {
		module string
		entry  string
	}
	entries := [passTypeCount]entry{
		PassThreshold: {"bloom_threshold", "threshold"},
		PassBlurX:     {"bloom_blur", "blur_x"},
		PassBlurY:     {"bloom_blur", "blur_y"},
		PassUpsample:  {"bloom_upsample", "upsample"},
		PassPresent:   {"bloom_upsample", "present"},
	}

	shaders := make(map[string]shader.Shader)
	modules := make(map[string]gpu.ShaderModule)
	for _, e := range entries {
		if _, ok := shaders[e.module]; ok {
			continue
		}
		s, err := shader.Load(e.module)
		if err != nil {
			return err
		}
		m, err := ctx.Registry.CreateShader(e.module, s.Source())
		if err != nil {
			return err
		}
		shaders[e.module], modules[e.module] = s, m
	}

	for t := range passTypeCount {
		e := entries[t]
		s := shaders[e.module]
		opts := []pipeline.PipelineBuilderOption{pipeline.WithShader(s, e.entry)}
		// The present pass has the upsample bindings and reuses its layout.
		if t == PassPresent {
			opts = append(opts, pipeline.WithLayouts(g.pipelines[PassUpsample].Layouts()...))
		}
		p := pipeline.NewPipeline("bloom."+t.String(), pipeline.PipelineTypeCompute, opts...)
		if err := p.Create(ctx.Device, modules[e.module]); err != nil {
			return err
		}
		g.pipelines[t] = p
		size, err := workgroupSize(s, e.entry)
		if err != nil {
			return err
		}
		g.workgroup[t] = size
	}

	if _, err := ctx.Registry.CreateBuffer(bufferParams, &wgpu.BufferDescriptor{
		Size:  paramsUniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	}); err != nil {
		return err
	}

	g.providers = make([]bgp.BindGroupProvider, len(g.descs))
	for i, d := range g.descs {
		g.providers[i] = provider(d)
	}

	var err error
	g.cache, err = lru.NewWithEvict(g.cacheSize, func(_ cacheKey, group gpu.BindGroup) {
		group.Release()
	})
	return err
}

// workgroupSize reads the dispatch granularity of a pass entry point. Dispatch counts are derived from
// it, so a missing size is an error rather than one workgroup per texel.
func workgroupSize(s shader.Shader, entry string) ([3]uint32, error) {
	size, ok := s.WorkgroupSize(entry)
	if !ok {
		return size, fmt.Errorf("bloom: %s has no @workgroup_size for %q", s.Name(), entry)
	}
	return size, nil
}

// provider declares the bindings of one descriptor by name.
func provider(d Descriptor) bgp.BindGroupProvider {
	label := fmt.Sprintf("bloom.%d.%s", d.Index, d.Type)
	opts := []bgp.BindGroupProviderOption{
		bgp.WithBuffer(0, bufferParams),
		bgp.WithTextureMip(1, d.Source.Name, d.Source.Mip),
	}
	if d.Secondary != nil {
		opts = append(opts,
			bgp.WithTextureMip(2, d.Secondary.Name, d.Secondary.Mip),
			bgp.WithSampler(3, stage.SamplerLinear),
			bgp.WithTextureMip(4, d.Dest.Name, d.Dest.Mip),
		)
	} else {
		opts = append(opts,
			bgp.WithSampler(2, stage.SamplerLinear),
			bgp.WithTextureMip(3, d.Dest.Name, d.Dest.Mip),
		)
	}
	return bgp.NewBindGroupProvider(label, opts...)
}

// bindGroup returns the cached bind group of d for the current registry generation, creating it on a
// miss.
func (g *graph) bindGroup(d Descriptor) (gpu.BindGroup, error) {
	key := cacheKey{index: d.Index, generation: g.ctx.Registry.Generation()}
	if group, ok := g.cache.Get(key); ok {
		return group, nil
	}
	layout := g.pipelines[d.Type].Layout(0)
	group, err := g.providers[d.Index].Create(g.ctx.Device, g.ctx.Registry, layout)
	if err != nil {
		return nil, fmt.Errorf("bloom: bind group for pass %d (%s): %w", d.Index, d.Type, err)
	}
	g.cache.Add(key, group)
	return group, nil
}

// OnResize drops every cached bind group; they reference the textures the rebuild released.
func (g *graph) OnResize(*stage.Context) error {
	if g.cache != nil {
		g.cache.Purge()
	}
	return nil
}

func (g *graph) UsePipeline(frame *stage.Frame) error {
	if !frame.Params.Features.Bloom {
		return nil
	}
	reg := g.ctx.Registry
	b := frame.Params.Bloom
	params := [paramsUniformSize / 4]float32{b.Threshold, b.Knee, b.Intensity, b.Scatter}
	if err := g.ctx.Device.WriteBuffer(reg.Buffer(bufferParams), 0, common.SliceToBytes(params[:])); err != nil {
		return fmt.Errorf("bloom: write params: %w", err)
	}

	pass := frame.Encoder.BeginComputePass(&gpu.ComputePassDescriptor{
		Label:      stage.NameBloom,
		Timestamps: frame.PassTimestamps(stage.NameBloom),
	})
	dispatched, err := g.dispatch(pass, reg)
	if endErr := pass.End(); err == nil {
		err = endErr
	}
	frame.CountDispatches(dispatched)
	return err
}

func (g *graph) dispatch(pass gpu.ComputePass, reg registry.Registry) (int, error) {
	for i, d := range g.descs {
		group, err := g.bindGroup(d)
		if err != nil {
			return i, err
		}
		pass.SetPipeline(g.pipelines[d.Type].Compute())
		pass.SetBindGroup(0, group)
		level := reg.Texture(d.Dest.Name).Size().Shift(d.Mip)
		n := DispatchSize(level, g.workgroup[d.Type])
		pass.DispatchWorkgroups(n[0], n[1], n[2])
	}
	return len(g.descs), nil
}

func (g *graph) Release() {
	if g.cache != nil {
		g.cache.Purge()
	}
	for t, p := range g.pipelines {
		if p != nil {
			p.Release()
			g.pipelines[t] = nil
		}
	}
}
