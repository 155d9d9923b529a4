package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy2d/engine/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// Registry names of the resources every stage may bind.
const (
	SamplerLinear  = "linear"
	SamplerNearest = "nearest"

	BufferQuadIndices = "quad.indices"
	// BufferCamera holds the world Camera uniform, written by the draw stage.
	BufferCamera = "camera"
	// BufferScreenCamera holds the pixel-space Camera uniform, written by the UI stage.
	BufferScreenCamera = "camera.screen"

	// TextureWhite is a 1x1 white texture, bound when no atlas was supplied.
	TextureWhite = "white"

	TextureSceneHDR    = "scene.hdr"
	TextureSceneDepth  = "scene.depth"
	TextureLightHDR    = "light.hdr"
	TextureLDR         = "ldr.color"
	TexturePost        = "ldr.post"
	TextureUI          = "ui.overlay"
	TextureBloomOutput = "bloom.output"
)

// Target formats.
const (
	HDRFormat   = wgpu.TextureFormatRGBA16Float
	LDRFormat   = wgpu.TextureFormatRGBA8Unorm
	DepthFormat = wgpu.TextureFormatDepth32Float
)

// CameraUniformSize is the size of the WGSL Camera struct: a view-projection matrix and the viewport.
const CameraUniformSize = 80

// quadIndices draws the unit quad as two triangles over quad_corner's vertex numbering.
var quadIndices = []uint16{0, 1, 2, 2, 1, 3}

// RegisterShared creates the samplers, buffers and textures stages share. It runs once, before any
// stage's CreateTargets.
//
// Parameters:
//   - ctx: the shared stage context
//
// Returns:
//   - error: error if a resource could not be created
func RegisterShared(ctx *Context) error {
	reg := ctx.Registry
	if _, err := reg.CreateSampler(SamplerLinear, common.LinearClamp); err != nil {
		return err
	}
	if _, err := reg.CreateSampler(SamplerNearest, common.NearestRepeat); err != nil {
		return err
	}

	indices, err := reg.CreateBuffer(BufferQuadIndices, &wgpu.BufferDescriptor{
		Size:  uint64(len(quadIndices) * 2),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	if err := ctx.Device.WriteBuffer(indices, 0, common.SliceToBytes(quadIndices)); err != nil {
		return fmt.Errorf("stage: upload quad indices: %w", err)
	}

	for _, name := range []string{BufferCamera, BufferScreenCamera} {
		if _, err := reg.CreateBuffer(name, uniformDescriptor(CameraUniformSize)); err != nil {
			return err
		}
	}

	_, err = reg.UploadTexture(TextureWhite, common.TextureStagingData{
		Width:  1,
		Height: 1,
		Pixels: []byte{255, 255, 255, 255},
	})
	return err
}

// writeCamera uploads a Camera uniform for a target of the given size.
func writeCamera(device gpu.Device, buffer gpu.Buffer, size common.Size, origin common.DrawOrigin, camX, camY float32) error {
	var u [CameraUniformSize / 4]float32
	common.Ortho(u[:16], size, origin, camX, camY)
	w, h := float32(max(size.Width, 1)), float32(max(size.Height, 1))
	u[16], u[17], u[18], u[19] = w, h, 1/w, 1/h
	return device.WriteBuffer(buffer, 0, common.SliceToBytes(u[:]))
}

// uniformDescriptor describes a uniform buffer written from the CPU.
func uniformDescriptor(size uint64) *wgpu.BufferDescriptor {
	return &wgpu.BufferDescriptor{
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	}
}

// renderTarget describes a single-level texture that is rendered into and sampled.
func renderTarget(format wgpu.TextureFormat) registry.TextureDescriber {
	return func(size common.Size) wgpu.TextureDescriptor {
		return wgpu.TextureDescriptor{
			Size:          wgpu.Extent3D{Width: size.Width, Height: size.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        format,
			Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		}
	}
}

// compile loads an embedded module and registers its compiled form under the module name.
func compile(ctx *Context, name string) (shader.Shader, gpu.ShaderModule, error) {
	s, err := shader.Load(name)
	if err != nil {
		return nil, nil, err
	}
	module, err := ctx.Registry.CreateShader(name, s.Source())
	if err != nil {
		return nil, nil, err
	}
	return s, module, nil
}

// createFullscreen builds a single-target pipeline over the fullscreen triangle.
func createFullscreen(ctx *Context, key, module, entry string, format wgpu.TextureFormat) (pipeline.Pipeline, error) {
	s, compiled, err := compile(ctx, module)
	if err != nil {
		return nil, err
	}
	p := pipeline.NewPipeline(key, pipeline.PipelineTypeRender,
		pipeline.WithShader(s, entry),
		pipeline.WithTargetFormat(format),
	)
	if err := p.Create(ctx.Device, compiled); err != nil {
		return nil, err
	}
	return p, nil
}

// drawFullscreen records one pass that clears target and draws the fullscreen triangle.
func drawFullscreen(frame *Frame, name string, target gpu.TextureView, p pipeline.Pipeline, group gpu.BindGroup) error {
	pass := frame.Encoder.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label: name,
		ColorAttachments: []gpu.ColorAttachment{{
			View:    target,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
		Timestamps: frame.PassTimestamps(name),
	})
	pass.SetPipeline(p.Render())
	pass.SetBindGroup(0, group)
	pass.Draw(3, 1, 0, 0)
	frame.countDraws(name, 1, 1)
	return pass.End()
}

// clearColor converts a config color to a wgpu clear value.
func clearColor(c common.Color) wgpu.Color {
	return wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
}
