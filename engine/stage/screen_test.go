package stage

import (
	"testing"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/batch"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostProcessSkipsWhenInactive(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)

	cases := map[string]func(f *Frame){
		"no effects": func(f *Frame) { f.Params.Features.PostProcess = true },
		"disabled":   func(f *Frame) { f.Params.PostProcess.Scanlines = 0.5 },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			frame := newTestFrame(t, dev, ctx)
			frame.LDR = TextureLDR
			setup(frame)
			dev.ResetCalls()

			require.NoError(t, s.post.UsePipeline(frame))
			assert.Empty(t, dev.Calls)
			assert.Equal(t, TextureLDR, frame.LDR)
		})
	}
}

func TestPostProcessReplacesLDR(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)
	frame.LDR = TextureLDR
	frame.Params.Features.PostProcess = true
	frame.Params.PostProcess.ChromaticOffset = 2
	frame.Params.Time = 3
	dev.ResetCalls()

	require.NoError(t, s.post.UsePipeline(frame))

	assert.Equal(t, TexturePost, frame.LDR)
	assert.Equal(t, []string{groupPost}, labels(dev.CallsOf(gputest.OpSetBindGroup)))
	assert.Same(t, ctx.Registry.Texture(TexturePost).View, dev.RenderPasses[0].ColorAttachments[0].View)

	draws := dev.CallsOf(gputest.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, []uint64{3, 1}, draws[0].Args)
}

func TestRectRecord(t *testing.T) {
	u := NewUIStage(config.Default().Draw)
	u.Rect(Rect{X: 1, Y: 2, Width: 30, Height: 40, Color: common.RGBA(0.5, 0.5, 0.5, 1), Radius: 4, Border: 1})

	nodes := u.GetBatch(batch.StateKey{Variant: UIVariant})
	assert.Equal(t, []float32{1, 2, 30, 40, 0.5, 0.5, 0.5, 1, 4, 1, 0, 0}, nodes.Data())
	assert.Equal(t, 1, u.Instances())
}

func TestUIClipStartsScissoredBatch(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)

	red := common.RGBA(1, 0, 0, 1)
	s.ui.Rect(Rect{Width: 10, Height: 10, Color: red})
	s.ui.Rect(Rect{Width: 10, Height: 10, Color: red, Clip: &common.ClipRect{X: 700, Y: 500, Width: 200, Height: 200}})
	s.ui.Rect(Rect{Width: 10, Height: 10, Color: red})
	dev.ResetCalls()

	require.NoError(t, s.ui.UsePipeline(frame))

	scissors := dev.CallsOf(gputest.OpSetScissorRect)
	require.Len(t, scissors, 2)
	// The clip is clamped to the viewport, then reset for the unclipped batch after it.
	assert.Equal(t, []uint64{700, 500, 100, 100}, scissors[0].Args)
	assert.Equal(t, []uint64{0, 0, 800, 600}, scissors[1].Args)
	assert.Len(t, dev.CallsOf(gputest.OpDrawIndexed), 3)
	// Every batch shares one pipeline, so it is bound once.
	assert.Len(t, dev.CallsOf(gputest.OpSetPipeline), 1)

	writes := dev.CallsOf(gputest.OpWriteBuffer)
	require.NotEmpty(t, writes)
	assert.Equal(t, BufferScreenCamera, writes[0].Label)

	att := dev.RenderPasses[0].ColorAttachments[0]
	assert.Equal(t, wgpu.Color{}, att.ClearValue)
	assert.Same(t, ctx.Registry.Texture(TextureUI).View, att.View)
	assert.Equal(t, &pipeline.AlphaBlend, findPipeline(t, dev, NameUI).Render.Targets[0].Blend)
}

func TestHiddenUIOnlyClears(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)

	for name, hide := range map[string]func(f *Frame){
		"disabled": func(f *Frame) {
			f.Params.Features.UI = false
			s.ui.Rect(Rect{Width: 1, Height: 1})
		},
		"empty": func(*Frame) {},
	} {
		t.Run(name, func(t *testing.T) {
			s.ui.Clear()
			frame := newTestFrame(t, dev, ctx)
			hide(frame)
			dev.ResetCalls()

			require.NoError(t, s.ui.UsePipeline(frame))
			assert.Equal(t, []gputest.Op{gputest.OpBeginRenderPass, gputest.OpEndRenderPass}, ops(dev.Calls))
		})
	}
}

func TestUIRejectsUnknownVariant(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	s.ui.GetBatch(batch.StateKey{Variant: "sprite"}).Push(make([]float32, UILayout.Stride))

	err := s.ui.UsePipeline(newTestFrame(t, dev, ctx))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"sprite"`)
}

func TestPresentSelectsFinalLDR(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)

	for source, group := range presentGroups {
		frame := newTestFrame(t, dev, ctx)
		frame.LDR = source
		dev.ResetCalls()

		require.NoError(t, s.present.UsePipeline(frame))
		assert.Equal(t, []string{group}, labels(dev.CallsOf(gputest.OpSetBindGroup)), source)
		assert.Equal(t, "surface", dev.RenderPasses[0].ColorAttachments[0].View.(*gputest.TextureView).Label)
	}

	p := findPipeline(t, dev, NamePresent)
	assert.Equal(t, dev.Format(), p.Render.Targets[0].Format)
}

func TestPresentWithoutLDRFails(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	dev.ResetCalls()

	err := s.present.UsePipeline(newTestFrame(t, dev, ctx))
	require.Error(t, err)
	assert.Empty(t, dev.Calls)
}
