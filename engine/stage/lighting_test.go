package stage

import (
	"testing"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLightCapsAtMaxLights(t *testing.T) {
	l := NewLightingStage(config.Lighting{MaxLights: 2})

	assert.True(t, l.AddLight(Light{X: 1}))
	assert.True(t, l.AddLight(Light{X: 2}))
	assert.False(t, l.AddLight(Light{X: 3}))
	assert.Equal(t, 2, l.Lights())

	l.Clear()
	assert.Zero(t, l.Lights())
	assert.True(t, l.AddLight(Light{X: 4}))
}

func TestLightingAccumulatesAdditively(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)
	frame.Params.Lighting.Ambient = common.RGBA(0.1, 0.2, 0.3, 1)

	s.lighting.AddLight(Light{X: 10, Y: 20, Radius: 64, Intensity: 2, Color: common.RGBA(1, 0.5, 0.25, 1)})
	s.lighting.AddLight(Light{X: 30, Y: 40, Radius: 32, Intensity: 1, Color: common.RGBA(1, 1, 1, 1)})
	dev.ResetCalls()

	require.NoError(t, s.lighting.UsePipeline(frame))

	require.Len(t, dev.RenderPasses, 1)
	att := dev.RenderPasses[0].ColorAttachments[0]
	assert.Same(t, ctx.Registry.Texture(TextureLightHDR).View, att.View)
	assert.InDelta(t, 0.2, att.ClearValue.G, 1e-6)

	draws := dev.CallsOf(gputest.OpDrawIndexed)
	require.Len(t, draws, 1)
	assert.Equal(t, []uint64{6, 2, 0}, draws[0].Args)
	assert.Equal(t, []string{groupLightCamera}, labels(dev.CallsOf(gputest.OpSetBindGroup)))

	p := findPipeline(t, dev, NameLighting)
	assert.Equal(t, &pipeline.AdditiveBlend, p.Render.Targets[0].Blend)
	assert.Nil(t, p.Render.DepthStencil)
}

func TestDisabledLightingOnlyClears(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)
	frame.Params.Features.Lighting = false

	s.lighting.AddLight(Light{Radius: 10, Intensity: 1, Color: common.RGBA(1, 1, 1, 1)})
	dev.ResetCalls()

	require.NoError(t, s.lighting.UsePipeline(frame))
	assert.Equal(t, []gputest.Op{gputest.OpBeginRenderPass, gputest.OpEndRenderPass}, ops(dev.Calls))
	assert.Equal(t, wgpu.LoadOpClear, dev.RenderPasses[0].ColorAttachments[0].LoadOp)
}

func ops(calls []gputest.Call) []gputest.Op {
	out := make([]gputest.Op, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}
