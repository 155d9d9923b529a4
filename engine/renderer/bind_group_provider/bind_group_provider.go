package bind_group_provider

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
)

// WholeTexture selects the view over every mip level instead of a single level.
const WholeTexture = -1

// TextureBinding names a registered texture and the mip level to bind.
type TextureBinding struct {
	Name string
	Mip  int
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is the bind group name, also used as its registry key.
	label string

	// buffers holds the registry names of the buffers bound by this provider, keyed by binding index.
	buffers map[int]string
	// textureViews holds the textures bound by this provider, keyed by binding index.
	textureViews map[int]TextureBinding
	// samplers holds the registry names of the samplers bound by this provider, keyed by binding index.
	samplers map[int]string
}

// BindGroupProvider describes one bind group by the registry names of its resources. Stages declare their
// bindings through a provider and never hold the resolved handles, so the registry can rebuild the group
// whenever a bound texture is recreated.
//
// Usage pattern:
//  1. A stage creates a provider with one With* option per binding
//  2. The stage calls Register with the pipeline's layout for that group
//  3. The stage looks the group up by Label() each frame
type BindGroupProvider interface {
	// Label returns the bind group name.
	//
	// Returns:
	//   - string: the name
	Label() string

	// Buffers returns the buffer names keyed by binding index.
	Buffers() map[int]string

	// TextureViews returns the texture bindings keyed by binding index.
	TextureViews() map[int]TextureBinding

	// Samplers returns the sampler names keyed by binding index.
	Samplers() map[int]string

	// Entries resolves every binding, ordered by binding index.
	//
	// Parameters:
	//   - res: the resolver to look names up in
	//
	// Returns:
	//   - []gpu.BindGroupEntry: the entries
	//   - error: a *registry.NotFoundError for an unknown name
	Entries(res registry.Resolver) ([]gpu.BindGroupEntry, error)

	// Register builds the group through the registry so it is regenerated on resolution rebuilds.
	//
	// Parameters:
	//   - reg: the registry
	//   - layout: the layout of the group
	//
	// Returns:
	//   - *registry.BindGroup: the registered group
	//   - error: a lookup, duplicate or creation error
	Register(reg registry.Registry, layout gpu.BindGroupLayout) (*registry.BindGroup, error)

	// Create builds an unregistered group. The caller owns and releases it.
	//
	// Parameters:
	//   - device: the device to create on
	//   - res: the resolver to look names up in
	//   - layout: the layout of the group
	//
	// Returns:
	//   - gpu.BindGroup: the group
	//   - error: a lookup or creation error
	Create(device gpu.Device, res registry.Resolver, layout gpu.BindGroupLayout) (gpu.BindGroup, error)
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a provider. Binding indices must be unique across every resource kind.
//
// Parameters:
//   - label: the bind group name
//   - options: one option per binding
//
// Returns:
//   - BindGroupProvider: the provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:        label,
		buffers:      make(map[int]string),
		textureViews: make(map[int]TextureBinding),
		samplers:     make(map[int]string),
	}
	for _, opt := range options {
		opt(p)
	}
	seen := make(map[int]bool)
	for _, keys := range [][]int{
		slices.Collect(maps.Keys(p.buffers)),
		slices.Collect(maps.Keys(p.textureViews)),
		slices.Collect(maps.Keys(p.samplers)),
	} {
		for _, k := range keys {
			if seen[k] {
				panic(fmt.Sprintf("bind group %q: binding %d declared twice", label, k))
			}
			seen[k] = true
		}
	}
	return p
}

func (p *bindGroupProvider) Label() string                        { return p.label }
func (p *bindGroupProvider) Buffers() map[int]string              { return maps.Clone(p.buffers) }
func (p *bindGroupProvider) TextureViews() map[int]TextureBinding { return maps.Clone(p.textureViews) }
func (p *bindGroupProvider) Samplers() map[int]string             { return maps.Clone(p.samplers) }

func (p *bindGroupProvider) Entries(res registry.Resolver) ([]gpu.BindGroupEntry, error) {
	entries := make([]gpu.BindGroupEntry, 0, len(p.buffers)+len(p.textureViews)+len(p.samplers))
	for binding, name := range p.buffers {
		buf, err := res.LookupBuffer(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, gpu.BufferEntry(uint32(binding), buf))
	}
	for binding, tb := range p.textureViews {
		tex, err := res.LookupTexture(tb.Name)
		if err != nil {
			return nil, err
		}
		view := tex.View
		if tb.Mip != WholeTexture {
			view = tex.Mip(uint32(tb.Mip))
		}
		entries = append(entries, gpu.ViewEntry(uint32(binding), view))
	}
	for binding, name := range p.samplers {
		samp, err := res.LookupSampler(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, gpu.SamplerEntry(uint32(binding), samp))
	}
	slices.SortFunc(entries, func(a, b gpu.BindGroupEntry) int { return cmp.Compare(a.Binding, b.Binding) })
	return entries, nil
}

func (p *bindGroupProvider) Register(reg registry.Registry, layout gpu.BindGroupLayout) (*registry.BindGroup, error) {
	return reg.RegisterBindGroupBuilder(p.label, layout, p.Entries)
}

func (p *bindGroupProvider) Create(device gpu.Device, res registry.Resolver, layout gpu.BindGroupLayout) (gpu.BindGroup, error) {
	entries, err := p.Entries(res)
	if err != nil {
		return nil, fmt.Errorf("bind group %q: %w", p.label, err)
	}
	return device.CreateBindGroup(&gpu.BindGroupDescriptor{
		Label:   p.label,
		Layout:  layout,
		Entries: entries,
	})
}
