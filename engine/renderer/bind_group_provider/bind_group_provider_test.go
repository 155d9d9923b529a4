package bind_group_provider

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainDescriber(size common.Size) wgpu.TextureDescriptor {
	return wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: size.Width / 2, Height: size.Height / 2, DepthOrArrayLayers: 1},
		MipLevelCount: 3,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA16Float,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	}
}

func newTestRegistry(t *testing.T) (*gputest.Device, registry.Registry) {
	t.Helper()
	dev := gputest.NewDevice()
	reg := registry.NewRegistry(dev, registry.WithInitialSize(common.Size{Width: 800, Height: 600}))
	_, err := reg.CreateBuffer("params", &wgpu.BufferDescriptor{Size: 16, Usage: wgpu.BufferUsageUniform})
	require.NoError(t, err)
	_, err = reg.CreateSampler("linear", common.LinearClamp)
	require.NoError(t, err)
	_, err = reg.RegisterResolutionTexture("chain", chainDescriber, true)
	require.NoError(t, err)
	return dev, reg
}

func TestEntriesAreOrderedByBinding(t *testing.T) {
	_, reg := newTestRegistry(t)
	p := NewBindGroupProvider("blur",
		WithSampler(2, "linear"),
		WithTextureMip(3, "chain", 1),
		WithBuffer(0, "params"),
		WithTextureView(1, "chain"),
	)

	entries, err := p.Entries(reg)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, uint32(i), e.Binding)
	}
	assert.Same(t, reg.Buffer("params"), entries[0].Buffer)
	assert.Same(t, reg.Texture("chain").View, entries[1].TextureView)
	assert.Same(t, reg.Texture("chain").Mip(1), entries[3].TextureView)
	assert.Equal(t, "chain@1", entries[3].TextureView.(*gputest.TextureView).Label)
	assert.Same(t, reg.Sampler("linear"), entries[2].Sampler)
}

func TestUnknownNameSurfacesNotFound(t *testing.T) {
	dev, reg := newTestRegistry(t)
	p := NewBindGroupProvider("broken", WithTextureView(0, "missing"))

	_, err := p.Create(dev, reg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNotFound))
	assert.Contains(t, err.Error(), `"broken"`)
	assert.Empty(t, dev.Groups)
}

func TestDuplicateBindingAcrossKindsPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewBindGroupProvider("dup", WithBuffer(0, "params"), WithSampler(0, "linear"))
	})
}

func TestAccessorsReturnCopies(t *testing.T) {
	p := NewBindGroupProvider("copy", WithBuffer(0, "params"))
	p.Buffers()[0] = "changed"
	assert.Equal(t, "params", p.Buffers()[0])
	assert.Equal(t, "copy", p.Label())
	assert.Empty(t, p.TextureViews())
	assert.Empty(t, p.Samplers())
}

func TestRegisteredGroupFollowsRebuilds(t *testing.T) {
	dev, reg := newTestRegistry(t)
	p := NewBindGroupProvider("chain.read", WithTextureMip(0, "chain", 2), WithSampler(1, "linear"))

	first, err := p.Register(reg, &gputest.Handle{Label: "layout"})
	require.NoError(t, err)
	require.Same(t, first, reg.BindGroup("chain.read"))

	require.NoError(t, reg.RebuildResolutionDependent(common.Size{Width: 1024, Height: 768}))

	second := reg.BindGroup("chain.read")
	assert.NotSame(t, first.Group, second.Group)
	assert.True(t, first.Group.(*gputest.BindGroup).Released)
	view := second.Group.(*gputest.BindGroup).Desc.Entries[0].TextureView
	assert.Same(t, reg.Texture("chain").Mip(2), view)
	assert.Len(t, dev.Groups, 2)
}
