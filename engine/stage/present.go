package stage

import (
	"fmt"

	bgp "github.com/Carmen-Shannon/oxy2d/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
)

// presentGroups maps each possible final LDR texture to the bind group that composites it with the UI.
var presentGroups = map[string]string{
	TextureLDR:  "present.color",
	TexturePost: "present.post",
}

// presentStage composites the final LDR image and the UI overlay onto the surface.
type presentStage struct {
	base
	pipeline pipeline.Pipeline
}

var _ Stage = &presentStage{}

// NewPresentStage creates the present stage.
func NewPresentStage() Stage {
	return &presentStage{base: base{name: NamePresent}}
}

func (p *presentStage) CreatePipeline(ctx *Context) error {
	p.ctx = ctx
	var err error
	if p.pipeline, err = createFullscreen(ctx, NamePresent, "present", "fs_present", ctx.SurfaceFormat); err != nil {
		return err
	}
	for _, source := range []string{TextureLDR, TexturePost} {
		_, err := bgp.NewBindGroupProvider(presentGroups[source],
			bgp.WithTextureView(0, source),
			bgp.WithTextureView(1, TextureUI),
			bgp.WithSampler(2, SamplerLinear),
		).Register(ctx.Registry, p.pipeline.Layout(0))
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *presentStage) UsePipeline(frame *Frame) error {
	group, ok := presentGroups[frame.LDR]
	if !ok {
		return fmt.Errorf("stage: present: no LDR image (frame.LDR %q)", frame.LDR)
	}
	return drawFullscreen(frame, NamePresent, frame.Surface, p.pipeline, p.ctx.Registry.BindGroup(group).Group)
}

func (p *presentStage) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
	}
}
