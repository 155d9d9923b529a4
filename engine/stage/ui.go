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

// UILayout is UIInstance: top-left position, size, color, then corner radius and border width.
var UILayout = batch.Layout{Stride: 12, YField: 1}

// UIVariant is the pipeline variant of every UI batch.
const UIVariant = "ui"

const groupUIScreen = "ui.screen"

// Rect is a rounded UI rectangle in pixels from the top-left of the window.
type Rect struct {
	X, Y          float32
	Width, Height float32
	Color         common.Color
	Radius        float32
	// Border draws only an outline of this width when positive.
	Border float32
	// Clip restricts drawing to a scissor rectangle when non-nil.
	Clip *common.ClipRect
}

// UIStage draws the UI in submission order over a transparent overlay, which the present stage
// composites on top of the final image. A change of clip rectangle starts a new batch.
type UIStage interface {
	Stage

	// GetBatch returns the node UI records for key should be written to.
	//
	// Parameters:
	//   - key: the batch state; Variant must be UIVariant
	//
	// Returns:
	//   - *batch.Node: the node, with UILayout records
	GetBatch(key batch.StateKey) *batch.Node

	Rect(r Rect)

	// Instances returns the number of records queued this frame.
	Instances() int
}

// uiStage is the implementation of the UIStage interface.
type uiStage struct {
	base
	acc      batch.Accumulator
	pipeline pipeline.Pipeline
}

var _ UIStage = &uiStage{}

// NewUIStage creates the UI stage.
//
// Parameters:
//   - cfg: the draw configuration, for node capacity
//
// Returns:
//   - UIStage: the stage
func NewUIStage(cfg config.Draw) UIStage {
	return &uiStage{
		base: base{name: NameUI},
		acc:  batch.NewAccumulator("ui.instances", UILayout, batch.WithInitialCapacity(cfg.InitialCapacity)),
	}
}

func (u *uiStage) CreateTargets(ctx *Context) error {
	_, err := ctx.Registry.RegisterResolutionTexture(TextureUI, renderTarget(LDRFormat), false)
	return err
}

func (u *uiStage) CreatePipeline(ctx *Context) error {
	u.ctx = ctx
	s, module, err := compile(ctx, "ui")
	if err != nil {
		return err
	}
	u.pipeline = pipeline.NewPipeline(NameUI, pipeline.PipelineTypeRender,
		pipeline.WithShader(s, "fs_ui"),
		pipeline.WithInstanceStruct("UIInstance"),
		pipeline.WithTargetFormat(LDRFormat),
		pipeline.WithBlendState(&pipeline.AlphaBlend),
	)
	if err := u.pipeline.Create(ctx.Device, module); err != nil {
		return err
	}
	_, err = bgp.NewBindGroupProvider(groupUIScreen, bgp.WithBuffer(0, BufferScreenCamera)).
		Register(ctx.Registry, u.pipeline.Layout(0))
	return err
}

func (u *uiStage) GetBatch(key batch.StateKey) *batch.Node {
	return u.acc.GetBatch(key)
}

func (u *uiStage) Rect(r Rect) {
	key := batch.StateKey{Variant: UIVariant}
	if r.Clip != nil {
		key.Clip, key.Clipped = *r.Clip, true
	}
	rec := u.acc.GetBatch(key).Next()
	rec[0], rec[1], rec[2], rec[3] = r.X, r.Y, r.Width, r.Height
	copy(rec[4:8], r.Color[:])
	rec[8], rec[9], rec[10], rec[11] = r.Radius, r.Border, 0, 0
}

func (u *uiStage) Instances() int {
	return u.acc.Instances()
}

func (u *uiStage) Clear() {
	u.acc.Reset()
}

// UsePipeline clears the overlay and, when the UI is enabled, draws every batch over it. The overlay
// always uses a top-left origin with no camera offset.
func (u *uiStage) UsePipeline(frame *Frame) error {
	reg := u.ctx.Registry
	visible := frame.Params.Features.UI && u.acc.Instances() > 0
	if visible {
		if err := writeCamera(u.ctx.Device, reg.Buffer(BufferScreenCamera), frame.Size, common.OriginTopLeft, 0, 0); err != nil {
			return fmt.Errorf("stage: write screen camera: %w", err)
		}
	}
	pass := frame.Encoder.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label: NameUI,
		ColorAttachments: []gpu.ColorAttachment{{
			View:       reg.Texture(TextureUI).View,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{},
		}},
		Timestamps: frame.PassTimestamps(NameUI),
	})
	if !visible {
		return pass.End()
	}

	pass.SetIndexBuffer(reg.Buffer(BufferQuadIndices), wgpu.IndexFormatUint16, 0, uint64(len(quadIndices)*2))
	stats, err := u.acc.Flush(pass, u.ctx.Device, batch.BinderFunc(u.bind), frame.Size)
	if endErr := pass.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return fmt.Errorf("stage: ui: %w", err)
	}
	frame.countDraws(NameUI, stats.DrawCalls, stats.Instances)
	return nil
}

func (u *uiStage) bind(pass gpu.RenderPass, key batch.StateKey) error {
	if key.Variant != UIVariant {
		return fmt.Errorf("stage: unknown ui variant %q", key.Variant)
	}
	pass.SetPipeline(u.pipeline.Render())
	pass.SetBindGroup(0, u.ctx.Registry.BindGroup(groupUIScreen).Group)
	return nil
}

func (u *uiStage) Release() {
	u.acc.Release()
	if u.pipeline != nil {
		u.pipeline.Release()
	}
}
