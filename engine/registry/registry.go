// Package registry owns every named GPU resource the engine uses. Stages never hold GPU handles across a
// resolution change: they look resources up by name each time they need them, so a rebuild can replace
// textures and bind groups wholesale without leaving stale references behind.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Texture is a registered texture with its default view and, when requested, one view per mip level.
type Texture struct {
	// Texture is the GPU texture.
	Texture gpu.Texture
	// View covers every mip level.
	View gpu.TextureView
	// MipViews holds one single-level view per mip level, or nil when mip views were not requested.
	MipViews []gpu.TextureView
	// ResolutionDependent marks textures that are recreated by RebuildResolutionDependent.
	ResolutionDependent bool
}

// Mip returns the view of a single mip level. Textures without mip views return the default view for level 0.
//
// Parameters:
//   - level: the mip level
//
// Returns:
//   - gpu.TextureView: the view of that level
func (t *Texture) Mip(level uint32) gpu.TextureView {
	if t.MipViews == nil && level == 0 {
		return t.View
	}
	if int(level) >= len(t.MipViews) {
		panic(fmt.Sprintf("registry: mip level %d out of range (texture has %d mip views)", level, len(t.MipViews)))
	}
	return t.MipViews[level]
}

// Size returns the base level size.
func (t *Texture) Size() common.Size {
	return t.Texture.Size()
}

func (t *Texture) release() {
	for _, v := range t.MipViews {
		v.Release()
	}
	if t.View != nil {
		t.View.Release()
	}
	if t.Texture != nil {
		t.Texture.Release()
	}
}

// BindGroup is a bind group paired with the layout it was created against.
type BindGroup struct {
	Layout gpu.BindGroupLayout
	Group  gpu.BindGroup
}

// TextureDescriber derives a texture descriptor from the output resolution.
type TextureDescriber func(size common.Size) wgpu.TextureDescriptor

// BindGroupBuilder produces the entries of a bind group from resources resolved by name.
// Builders must only look resources up through the Resolver they are given.
type BindGroupBuilder func(res Resolver) ([]gpu.BindGroupEntry, error)

// Resolver is the result-typed lookup surface. Every method returns a *NotFoundError for unknown names.
type Resolver interface {
	LookupBuffer(name string) (gpu.Buffer, error)
	LookupTexture(name string) (*Texture, error)
	LookupSampler(name string) (gpu.Sampler, error)
	LookupShader(name string) (gpu.ShaderModule, error)
	LookupBindGroup(name string) (*BindGroup, error)
}

// Registry is the single owner of named GPU resources, grouped by category.
//
// Registration fails with ErrDuplicate when the name is taken in its category. The getters without the
// Lookup prefix are the fatal boundary: they panic with a *NotFoundError naming the category and the name.
type Registry interface {
	Resolver

	// Device returns the device resources are created on.
	Device() gpu.Device

	// Size returns the resolution resolution-dependent textures are currently built for.
	Size() common.Size

	// Generation increments on every successful rebuild. Caches of derived objects key on it.
	Generation() uint64

	RegisterBuffer(name string, buffer gpu.Buffer) error
	RegisterTexture(name string, texture *Texture) error
	RegisterSampler(name string, sampler gpu.Sampler) error
	RegisterShader(name string, module gpu.ShaderModule) error
	RegisterBindGroup(name string, group *BindGroup) error

	// CreateBuffer creates and registers a buffer.
	CreateBuffer(name string, desc *wgpu.BufferDescriptor) (gpu.Buffer, error)

	// CreateSampler creates and registers a sampler.
	CreateSampler(name string, data common.SamplerStagingData) (gpu.Sampler, error)

	// CreateShader compiles and registers a shader module.
	CreateShader(name, source string) (gpu.ShaderModule, error)

	// UploadTexture creates an RGBA8 user-content texture, uploads the pixels and registers it.
	// User-content textures persist across rebuilds.
	UploadTexture(name string, data common.TextureStagingData) (*Texture, error)

	// RegisterResolutionTexture declares and creates a resolution-dependent texture at the current size.
	//
	// Parameters:
	//   - name: texture name
	//   - describe: derives the descriptor from a resolution
	//   - mipViews: true to create one view per mip level
	//
	// Returns:
	//   - *Texture: the created texture
	//   - error: ErrDuplicate, or a creation error
	RegisterResolutionTexture(name string, describe TextureDescriber, mipViews bool) (*Texture, error)

	// RegisterBindGroupBuilder builds and registers a bind group from a builder. Builders that resolve any
	// resolution-dependent texture are re-run by RebuildResolutionDependent.
	//
	// Parameters:
	//   - name: bind group name
	//   - layout: the layout the group is created against
	//   - build: produces the entries
	//
	// Returns:
	//   - *BindGroup: the created group
	//   - error: ErrDuplicate, a lookup error from the builder, or a creation error
	RegisterBindGroupBuilder(name string, layout gpu.BindGroupLayout, build BindGroupBuilder) (*BindGroup, error)

	// RebuildResolutionDependent recreates every resolution-dependent texture at size and regenerates every
	// bind group whose builder references one. It is all-or-nothing: on failure the previous resources stay
	// live and everything created during the attempt is released.
	//
	// Parameters:
	//   - size: the new output resolution
	//
	// Returns:
	//   - error: wrapped creation or builder error
	RebuildResolutionDependent(size common.Size) error

	Buffer(name string) gpu.Buffer
	Texture(name string) *Texture
	Sampler(name string) gpu.Sampler
	Shader(name string) gpu.ShaderModule
	BindGroup(name string) *BindGroup

	// Release releases every registered resource. Bind group layouts belong to the pipelines that created
	// them and are left alone.
	Release()
}

type resolutionSpec struct {
	describe TextureDescriber
	mipViews bool
}

type builderSpec struct {
	layout    gpu.BindGroupLayout
	build     BindGroupBuilder
	dependent bool
}

// registry is the implementation of the Registry interface.
type registry struct {
	mu     *sync.RWMutex
	device gpu.Device

	size       common.Size
	generation uint64

	buffers  map[string]gpu.Buffer
	textures map[string]*Texture
	samplers map[string]gpu.Sampler
	shaders  map[string]gpu.ShaderModule
	groups   map[string]*BindGroup

	resolution map[string]resolutionSpec
	builders   map[string]*builderSpec
}

var _ Registry = &registry{}

// NewRegistry creates an empty registry on device.
//
// Parameters:
//   - device: the device resources are created on
//   - options: functional options
//
// Returns:
//   - Registry: the registry
func NewRegistry(device gpu.Device, options ...RegistryBuilderOption) Registry {
	if device == nil {
		panic("registry: NewRegistry requires a non-nil Device")
	}
	r := &registry{
		mu:         &sync.RWMutex{},
		device:     device,
		buffers:    make(map[string]gpu.Buffer),
		textures:   make(map[string]*Texture),
		samplers:   make(map[string]gpu.Sampler),
		shaders:    make(map[string]gpu.ShaderModule),
		groups:     make(map[string]*BindGroup),
		resolution: make(map[string]resolutionSpec),
		builders:   make(map[string]*builderSpec),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *registry) Device() gpu.Device {
	return r.device
}

func (r *registry) Size() common.Size {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func register[T any](r *registry, m map[string]T, category Category, name string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := m[name]; ok {
		return fmt.Errorf("%w: %s %q", ErrDuplicate, category, name)
	}
	m[name] = v
	return nil
}

func (r *registry) RegisterBuffer(name string, buffer gpu.Buffer) error {
	return register(r, r.buffers, CategoryBuffer, name, buffer)
}

func (r *registry) RegisterTexture(name string, texture *Texture) error {
	return register(r, r.textures, CategoryTexture, name, texture)
}

func (r *registry) RegisterSampler(name string, sampler gpu.Sampler) error {
	return register(r, r.samplers, CategorySampler, name, sampler)
}

func (r *registry) RegisterShader(name string, module gpu.ShaderModule) error {
	return register(r, r.shaders, CategoryShader, name, module)
}

func (r *registry) RegisterBindGroup(name string, group *BindGroup) error {
	return register(r, r.groups, CategoryBindGroup, name, group)
}

func (r *registry) CreateBuffer(name string, desc *wgpu.BufferDescriptor) (gpu.Buffer, error) {
	desc.Label = common.Coalesce(desc.Label, name)
	buf, err := r.device.CreateBuffer(desc)
	if err != nil {
		return nil, err
	}
	if err := r.RegisterBuffer(name, buf); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (r *registry) CreateSampler(name string, data common.SamplerStagingData) (gpu.Sampler, error) {
	samp, err := r.device.CreateSampler(data.Descriptor(name))
	if err != nil {
		return nil, err
	}
	if err := r.RegisterSampler(name, samp); err != nil {
		samp.Release()
		return nil, err
	}
	return samp, nil
}

func (r *registry) CreateShader(name, source string) (gpu.ShaderModule, error) {
	module, err := r.device.CreateShaderModule(name, source)
	if err != nil {
		return nil, err
	}
	if err := r.RegisterShader(name, module); err != nil {
		module.Release()
		return nil, err
	}
	return module, nil
}

func (r *registry) UploadTexture(name string, data common.TextureStagingData) (*Texture, error) {
	if len(data.Pixels) != int(data.Width*data.Height*4) {
		return nil, fmt.Errorf("registry: texture %q has %d bytes, want %d for %dx%d RGBA", name, len(data.Pixels), data.Width*data.Height*4, data.Width, data.Height)
	}
	tex, err := createTexture(r.device, &wgpu.TextureDescriptor{
		Label:         name,
		Size:          wgpu.Extent3D{Width: data.Width, Height: data.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	}, false)
	if err != nil {
		return nil, err
	}
	if err := r.device.WriteTexture(tex.Texture, data); err != nil {
		tex.release()
		return nil, fmt.Errorf("registry: upload texture %q: %w", name, err)
	}
	if err := r.RegisterTexture(name, tex); err != nil {
		tex.release()
		return nil, err
	}
	return tex, nil
}

func (r *registry) RegisterResolutionTexture(name string, describe TextureDescriber, mipViews bool) (*Texture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.textures[name]; ok {
		return nil, fmt.Errorf("%w: %s %q", ErrDuplicate, CategoryTexture, name)
	}
	if r.size.Empty() {
		return nil, fmt.Errorf("registry: resolution texture %q registered before the resolution is known", name)
	}
	desc := describe(r.size)
	desc.Label = common.Coalesce(desc.Label, name)
	tex, err := createTexture(r.device, &desc, mipViews)
	if err != nil {
		return nil, err
	}
	tex.ResolutionDependent = true
	r.textures[name] = tex
	r.resolution[name] = resolutionSpec{describe: describe, mipViews: mipViews}
	return tex, nil
}

func (r *registry) RegisterBindGroupBuilder(name string, layout gpu.BindGroupLayout, build BindGroupBuilder) (*BindGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[name]; ok {
		return nil, fmt.Errorf("%w: %s %q", ErrDuplicate, CategoryBindGroup, name)
	}
	spec := &builderSpec{layout: layout, build: build}
	group, dependent, err := r.runBuilder(name, spec, nil)
	if err != nil {
		return nil, err
	}
	spec.dependent = dependent
	r.groups[name] = group
	r.builders[name] = spec
	return group, nil
}

// runBuilder runs a builder against the live resources overlaid with staged textures. The caller holds mu.
func (r *registry) runBuilder(name string, spec *builderSpec, staged map[string]*Texture) (*BindGroup, bool, error) {
	res := &trackingResolver{r: r, staged: staged}
	entries, err := spec.build(res)
	if err != nil {
		return nil, false, fmt.Errorf("registry: build bind group %q: %w", name, err)
	}
	group, err := r.device.CreateBindGroup(&gpu.BindGroupDescriptor{
		Label:   name,
		Layout:  spec.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, false, err
	}
	return &BindGroup{Layout: spec.layout, Group: group}, res.touchedResolution, nil
}

func (r *registry) RebuildResolutionDependent(size common.Size) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if size.Empty() {
		return fmt.Errorf("registry: cannot rebuild for empty resolution %dx%d", size.Width, size.Height)
	}

	staged := make(map[string]*Texture, len(r.resolution))
	stagedGroups := make(map[string]*BindGroup)
	abort := func(err error) error {
		for _, g := range stagedGroups {
			g.Group.Release()
		}
		for _, t := range staged {
			t.release()
		}
		return fmt.Errorf("registry: rebuild at %dx%d: %w", size.Width, size.Height, err)
	}

	for _, name := range slices.Sorted(maps.Keys(r.resolution)) {
		spec := r.resolution[name]
		desc := spec.describe(size)
		desc.Label = common.Coalesce(desc.Label, name)
		tex, err := createTexture(r.device, &desc, spec.mipViews)
		if err != nil {
			return abort(err)
		}
		tex.ResolutionDependent = true
		staged[name] = tex
	}

	for _, name := range slices.Sorted(maps.Keys(r.builders)) {
		spec := r.builders[name]
		if !spec.dependent {
			continue
		}
		group, _, err := r.runBuilder(name, spec, staged)
		if err != nil {
			return abort(err)
		}
		stagedGroups[name] = group
	}

	for name, tex := range staged {
		if old, ok := r.textures[name]; ok {
			old.release()
		}
		r.textures[name] = tex
	}
	for name, group := range stagedGroups {
		if old, ok := r.groups[name]; ok {
			old.Group.Release()
		}
		r.groups[name] = group
	}
	r.size = size
	r.generation++

	common.Logger().Info("registry rebuilt resolution-dependent resources",
		"width", size.Width, "height", size.Height,
		"textures", len(staged), "bindGroups", len(stagedGroups), "generation", r.generation)
	return nil
}

func (r *registry) LookupBuffer(name string) (gpu.Buffer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(r.buffers, CategoryBuffer, name)
}

func (r *registry) LookupTexture(name string) (*Texture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(r.textures, CategoryTexture, name)
}

func (r *registry) LookupSampler(name string) (gpu.Sampler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(r.samplers, CategorySampler, name)
}

func (r *registry) LookupShader(name string) (gpu.ShaderModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(r.shaders, CategoryShader, name)
}

func (r *registry) LookupBindGroup(name string) (*BindGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup(r.groups, CategoryBindGroup, name)
}

func (r *registry) Buffer(name string) gpu.Buffer       { return must(r.LookupBuffer(name)) }
func (r *registry) Texture(name string) *Texture        { return must(r.LookupTexture(name)) }
func (r *registry) Sampler(name string) gpu.Sampler     { return must(r.LookupSampler(name)) }
func (r *registry) Shader(name string) gpu.ShaderModule { return must(r.LookupShader(name)) }
func (r *registry) BindGroup(name string) *BindGroup    { return must(r.LookupBindGroup(name)) }

func (r *registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, g := range r.groups {
		g.Group.Release()
		delete(r.groups, name)
	}
	for name, t := range r.textures {
		t.release()
		delete(r.textures, name)
	}
	for name, s := range r.samplers {
		s.Release()
		delete(r.samplers, name)
	}
	for name, m := range r.shaders {
		m.Release()
		delete(r.shaders, name)
	}
	for name, b := range r.buffers {
		b.Release()
		delete(r.buffers, name)
	}
	clear(r.resolution)
	clear(r.builders)
}

// createTexture creates a texture with its default view and optional per-mip views.
func createTexture(device gpu.Device, desc *wgpu.TextureDescriptor, mipViews bool) (*Texture, error) {
	tex, err := device.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	out := &Texture{Texture: tex}
	out.View, err = tex.CreateView(nil)
	if err != nil {
		out.release()
		return nil, fmt.Errorf("registry: view of %q: %w", desc.Label, err)
	}
	if mipViews {
		for level := range tex.MipLevelCount() {
			view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
				Label:           fmt.Sprintf("%s mip %d", desc.Label, level),
				Format:          desc.Format,
				Dimension:       wgpu.TextureViewDimension2D,
				BaseMipLevel:    level,
				MipLevelCount:   1,
				BaseArrayLayer:  0,
				ArrayLayerCount: 1,
				Aspect:          wgpu.TextureAspectAll,
			})
			if err != nil {
				out.release()
				return nil, errors.Join(fmt.Errorf("registry: mip view %d of %q", level, desc.Label), err)
			}
			out.MipViews = append(out.MipViews, view)
		}
	}
	return out, nil
}

// trackingResolver resolves names against the live maps, preferring staged textures, and records whether
// any resolution-dependent texture was touched. It runs with the registry lock already held.
type trackingResolver struct {
	r                 *registry
	staged            map[string]*Texture
	touchedResolution bool
}

func (t *trackingResolver) LookupBuffer(name string) (gpu.Buffer, error) {
	return lookup(t.r.buffers, CategoryBuffer, name)
}

func (t *trackingResolver) LookupTexture(name string) (*Texture, error) {
	if tex, ok := t.staged[name]; ok {
		t.touchedResolution = true
		return tex, nil
	}
	tex, err := lookup(t.r.textures, CategoryTexture, name)
	if err == nil && tex.ResolutionDependent {
		t.touchedResolution = true
	}
	return tex, err
}

func (t *trackingResolver) LookupSampler(name string) (gpu.Sampler, error) {
	return lookup(t.r.samplers, CategorySampler, name)
}

func (t *trackingResolver) LookupShader(name string) (gpu.ShaderModule, error) {
	return lookup(t.r.shaders, CategoryShader, name)
}

func (t *trackingResolver) LookupBindGroup(name string) (*BindGroup, error) {
	return lookup(t.r.groups, CategoryBindGroup, name)
}
