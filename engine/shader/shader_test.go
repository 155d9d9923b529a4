package shader

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var embedded = []string{
	"draw", "glyph", "lighting", "colorcorrection", "postprocess", "ui", "present",
	"bloom_threshold", "bloom_blur", "bloom_upsample",
}

func TestLoadEveryEmbeddedModule(t *testing.T) {
	for _, name := range embedded {
		t.Run(name, func(t *testing.T) {
			s, err := Load(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())
			assert.NotContains(t, s.Source(), includePrefix)
			assert.NotEmpty(t, s.Groups())
		})
	}
}

func TestLoadUnknownModule(t *testing.T) {
	_, err := Load("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Panics(t, func() { MustLoad("missing") })
}

func TestRenderEntryPoints(t *testing.T) {
	s := MustLoad("draw")
	assert.Equal(t, KindRender, s.Kind())
	assert.Equal(t, "vs_shape", s.VertexEntry())
	assert.Equal(t, []string{"fs_quad", "fs_circle"}, s.FragmentEntries())
	assert.Empty(t, s.ComputeEntries())

	// The vertex entry of post stages comes from the fullscreen chunk.
	assert.Equal(t, "vs_fullscreen", MustLoad("colorcorrection").VertexEntry())
}

func TestComputeWorkgroupSizes(t *testing.T) {
	s := MustLoad("bloom_blur")
	assert.Equal(t, KindCompute, s.Kind())
	assert.Equal(t, []string{"blur_x", "blur_y"}, s.ComputeEntries())

	size, ok := s.WorkgroupSize("blur_y")
	require.True(t, ok)
	assert.Equal(t, [3]uint32{8, 8, 1}, size)

	_, ok = s.WorkgroupSize("threshold")
	assert.False(t, ok)

	assert.Equal(t, []string{"upsample", "present"}, MustLoad("bloom_upsample").ComputeEntries())
}

func TestWorkgroupSizeOmittedDimensions(t *testing.T) {
	s, err := Parse("linear", "@compute @workgroup_size(64) fn main() {}")
	require.NoError(t, err)
	size, ok := s.WorkgroupSize("main")
	require.True(t, ok)
	assert.Equal(t, [3]uint32{64, 1, 1}, size)
}

func TestComputeBindGroupLayout(t *testing.T) {
	s := MustLoad("bloom_threshold")
	desc, ok := s.BindGroupLayout(0)
	require.True(t, ok)
	assert.Equal(t, "bloom_threshold.0", desc.Label)
	require.Len(t, desc.Entries, 4)

	uniform := desc.Entries[0]
	assert.Equal(t, wgpu.BufferBindingTypeUniform, uniform.Buffer.Type)
	assert.Equal(t, uint64(16), uniform.Buffer.MinBindingSize)
	assert.Equal(t, wgpu.ShaderStageCompute, uniform.Visibility)

	assert.Equal(t, wgpu.TextureSampleTypeFloat, desc.Entries[1].Texture.SampleType)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, desc.Entries[2].Sampler.Type)

	storage := desc.Entries[3]
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, storage.StorageTexture.Format)
	assert.Equal(t, wgpu.StorageTextureAccessWriteOnly, storage.StorageTexture.Access)
	assert.Equal(t, "dest", s.BindingName(0, 3))

	_, ok = s.BindGroupLayout(1)
	assert.False(t, ok)
}

func TestRenderBindGroupLayouts(t *testing.T) {
	s := MustLoad("draw")
	assert.Equal(t, []int{0, 1}, s.Groups())

	camera, ok := s.BindGroupLayout(0)
	require.True(t, ok)
	require.Len(t, camera.Entries, 1)
	// mat4x4 plus the viewport vec4
	assert.Equal(t, uint64(80), camera.Entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, camera.Entries[0].Visibility)
	assert.Equal(t, "camera", s.BindingName(0, 0))
	assert.Equal(t, "atlas_sampler", s.BindingName(1, 1))
	assert.Equal(t, "", s.BindingName(2, 0))
}

func TestInstanceLayouts(t *testing.T) {
	cases := []struct {
		module, name string
		stride       uint64
		attributes   int
	}{
		{"draw", "ShapeInstance", 64, 5},
		{"glyph", "GlyphInstance", 80, 6},
		{"lighting", "LightInstance", 32, 3},
		{"ui", "UIInstance", 48, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			layout, ok := MustLoad(tc.module).InstanceLayout(tc.name)
			require.True(t, ok)
			assert.Equal(t, tc.stride, layout.ArrayStride)
			assert.Equal(t, wgpu.VertexStepModeInstance, layout.StepMode)
			require.Len(t, layout.Attributes, tc.attributes)
			for i, a := range layout.Attributes {
				assert.Equal(t, uint32(i), a.ShaderLocation)
			}
		})
	}
}

func TestInstanceLayoutRejectsBuiltins(t *testing.T) {
	s := MustLoad("draw")
	_, ok := s.InstanceLayout("ShapeOut")
	assert.False(t, ok)
	_, ok = s.InstanceLayout("Nope")
	assert.False(t, ok)
}

func TestParseRequiresEntryPoints(t *testing.T) {
	_, err := Parse("empty", "struct A { x: f32 }")
	require.Error(t, err)

	_, err = Parse("vertex_only", "@vertex fn vs() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }")
	require.Error(t, err)
}

func TestPreprocessExpandsOnce(t *testing.T) {
	chunks := fstest.MapFS{
		"a.wgsl": {Data: []byte("//@oxy:include b\nconst A = 1;")},
		"b.wgsl": {Data: []byte("const B = 2;")},
	}
	out, err := preprocess("main", "//@oxy:include a\n//@oxy:include b\nconst M = 0;", chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "const B = 2;"))
	assert.Less(t, strings.Index(out, "const B"), strings.Index(out, "const A"))
	assert.Contains(t, out, "const M = 0;")
}

func TestPreprocessErrors(t *testing.T) {
	chunks := fstest.MapFS{
		"a.wgsl": {Data: []byte("//@oxy:include b")},
		"b.wgsl": {Data: []byte("//@oxy:include a")},
	}
	cases := map[string]struct {
		source string
		want   string
	}{
		"cycle":     {"//@oxy:include a", "include cycle a -> b -> a"},
		"unknown":   {"//@oxy:include nope", `unknown include "nope"`},
		"malformed": {"//@oxy:include two words", "malformed include"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := preprocess("main", tc.source, chunks)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
