package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/batch"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	bgp "github.com/Carmen-Shannon/oxy2d/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// LightLayout is LightInstance: position, radius and intensity, color.
var LightLayout = batch.Layout{Stride: 8, YField: 1}

const groupLightCamera = "lighting.camera"

// lightKey is the single state every light is drawn with.
var lightKey = batch.StateKey{Variant: "light"}

// Light is a point light with a quadratic falloff that reaches zero at Radius.
type Light struct {
	X, Y      float32
	Radius    float32
	Intensity float32
	Color     common.Color
}

// LightingStage accumulates the frame's point lights additively into an HDR light texture that starts
// at the ambient color. Color correction multiplies the scene with it.
type LightingStage interface {
	Stage

	// AddLight queues a light for this frame.
	//
	// Parameters:
	//   - l: the light
	//
	// Returns:
	//   - bool: false when the frame already holds the maximum number of lights and l was dropped
	AddLight(l Light) bool

	// Lights returns the number of lights queued this frame.
	Lights() int
}

// lightingStage is the implementation of the LightingStage interface.
type lightingStage struct {
	base

	maxLights int
	dropped   int

	acc      batch.Accumulator
	pipeline pipeline.Pipeline
}

var _ LightingStage = &lightingStage{}

// NewLightingStage creates the lighting stage.
//
// Parameters:
//   - cfg: the lighting configuration; MaxLights caps the lights per frame
//
// Returns:
//   - LightingStage: the stage
func NewLightingStage(cfg config.Lighting) LightingStage {
	return &lightingStage{
		base:      base{name: NameLighting},
		maxLights: max(cfg.MaxLights, 1),
		acc:       batch.NewAccumulator("lighting.instances", LightLayout, batch.WithInitialCapacity(min(cfg.MaxLights, 256))),
	}
}

func (l *lightingStage) CreateTargets(ctx *Context) error {
	_, err := ctx.Registry.RegisterResolutionTexture(TextureLightHDR, renderTarget(HDRFormat), false)
	return err
}

func (l *lightingStage) CreatePipeline(ctx *Context) error {
	l.ctx = ctx
	s, module, err := compile(ctx, "lighting")
	if err != nil {
		return err
	}
	l.pipeline = pipeline.NewPipeline(NameLighting, pipeline.PipelineTypeRender,
		pipeline.WithShader(s, "fs_light"),
		pipeline.WithInstanceStruct("LightInstance"),
		pipeline.WithTargetFormat(HDRFormat),
		pipeline.WithBlendState(&pipeline.AdditiveBlend),
	)
	if err := l.pipeline.Create(ctx.Device, module); err != nil {
		return err
	}
	_, err = bgp.NewBindGroupProvider(groupLightCamera, bgp.WithBuffer(0, BufferCamera)).
		Register(ctx.Registry, l.pipeline.Layout(0))
	return err
}

func (l *lightingStage) AddLight(light Light) bool {
	if l.acc.Instances() >= l.maxLights {
		if l.dropped == 0 {
			common.Logger().Debug("light limit reached, dropping lights", "max", l.maxLights)
		}
		l.dropped++
		return false
	}
	r := l.acc.GetBatch(lightKey).Next()
	r[0], r[1], r[2], r[3] = light.X, light.Y, light.Radius, light.Intensity
	copy(r[4:8], light.Color[:])
	return true
}

func (l *lightingStage) Lights() int {
	return l.acc.Instances()
}

func (l *lightingStage) Clear() {
	l.acc.Reset()
	l.dropped = 0
}

// UsePipeline clears the light texture to the ambient color and, when lighting is enabled, adds every
// queued light on top. The camera uniform was written by the draw stage earlier in the frame.
func (l *lightingStage) UsePipeline(frame *Frame) error {
	reg := l.ctx.Registry
	pass := frame.Encoder.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label: NameLighting,
		ColorAttachments: []gpu.ColorAttachment{{
			View:       reg.Texture(TextureLightHDR).View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearColor(frame.Params.Lighting.Ambient),
		}},
		Timestamps: frame.PassTimestamps(NameLighting),
	})
	if !frame.Params.Features.Lighting {
		return pass.End()
	}

	pass.SetIndexBuffer(reg.Buffer(BufferQuadIndices), wgpu.IndexFormatUint16, 0, uint64(len(quadIndices)*2))
	stats, err := l.acc.Flush(pass, l.ctx.Device, batch.BinderFunc(l.bind), frame.Size)
	if endErr := pass.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return fmt.Errorf("stage: lighting: %w", err)
	}
	frame.countDraws(NameLighting, stats.DrawCalls, stats.Instances)
	return nil
}

func (l *lightingStage) bind(pass gpu.RenderPass, _ batch.StateKey) error {
	pass.SetPipeline(l.pipeline.Render())
	pass.SetBindGroup(0, l.ctx.Registry.BindGroup(groupLightCamera).Group)
	return nil
}

func (l *lightingStage) Release() {
	l.acc.Release()
	if l.pipeline != nil {
		l.pipeline.Release()
	}
}
