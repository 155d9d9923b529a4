package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	bgp "github.com/Carmen-Shannon/oxy2d/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
)

const (
	bufferPostParams = "postprocess.params"
	groupPost        = "postprocess"
)

// postUniformSize is the WGSL PostParams struct: the effect strengths with the time, and the viewport.
const postUniformSize = 32

// postProcessStage applies the LDR screen effects. When no effect is active it records nothing and the
// frame keeps presenting the color corrected image.
type postProcessStage struct {
	base
	pipeline pipeline.Pipeline
}

var _ Stage = &postProcessStage{}

// NewPostProcessStage creates the LDR post-process stage.
func NewPostProcessStage() Stage {
	return &postProcessStage{base: base{name: NamePostProcess}}
}

func (p *postProcessStage) CreateTargets(ctx *Context) error {
	_, err := ctx.Registry.RegisterResolutionTexture(TexturePost, renderTarget(LDRFormat), false)
	return err
}

func (p *postProcessStage) CreatePipeline(ctx *Context) error {
	p.ctx = ctx
	var err error
	if p.pipeline, err = createFullscreen(ctx, NamePostProcess, "postprocess", "fs_post", LDRFormat); err != nil {
		return err
	}
	if _, err := ctx.Registry.CreateBuffer(bufferPostParams, uniformDescriptor(postUniformSize)); err != nil {
		return err
	}
	_, err = bgp.NewBindGroupProvider(groupPost,
		bgp.WithBuffer(0, bufferPostParams),
		bgp.WithTextureView(1, TextureLDR),
		bgp.WithSampler(2, SamplerLinear),
	).Register(ctx.Registry, p.pipeline.Layout(0))
	return err
}

func (p *postProcessStage) UsePipeline(frame *Frame) error {
	opts := frame.Params.PostProcess
	if !frame.Params.Features.PostProcess || !opts.Active() {
		return nil
	}
	reg := p.ctx.Registry
	w, h := float32(max(frame.Size.Width, 1)), float32(max(frame.Size.Height, 1))
	u := [postUniformSize / 4]float32{
		opts.Vignette, opts.Scanlines, opts.ChromaticOffset, frame.Params.Time,
		w, h, 1 / w, 1 / h,
	}
	if err := p.ctx.Device.WriteBuffer(reg.Buffer(bufferPostParams), 0, common.SliceToBytes(u[:])); err != nil {
		return fmt.Errorf("stage: write post params: %w", err)
	}
	if err := drawFullscreen(frame, NamePostProcess, reg.Texture(TexturePost).View, p.pipeline, reg.BindGroup(groupPost).Group); err != nil {
		return err
	}
	frame.LDR = TexturePost
	return nil
}

func (p *postProcessStage) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
	}
}
