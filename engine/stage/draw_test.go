package stage

import (
	"strings"
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

func TestBucketFor(t *testing.T) {
	assert.Equal(t, batch.OpaqueQuad, bucketFor(batch.OpaqueQuad, false, 1))
	assert.Equal(t, batch.TransparentQuad, bucketFor(batch.OpaqueQuad, true, 1))
	assert.Equal(t, batch.TransparentCircle, bucketFor(batch.OpaqueCircle, false, 0.5))
	assert.Equal(t, batch.TransparentGlyph, bucketFor(batch.OpaqueGlyph, false, 0))
}

func TestDrawWarmsEveryVariant(t *testing.T) {
	dev, ctx := newTestContext(t)
	newTestStages(t, ctx)

	for _, b := range batch.Buckets {
		p := findPipeline(t, dev, "draw."+b.String())
		require.NotNil(t, p.Render.DepthStencil, b.String())
		assert.Equal(t, DepthFormat, p.Render.DepthStencil.Format)
		assert.Equal(t, HDRFormat, p.Render.Targets[0].Format)
		if b.Transparent() {
			assert.False(t, p.Render.DepthStencil.DepthWriteEnabled, b.String())
			assert.Equal(t, &pipeline.AlphaBlend, p.Render.Targets[0].Blend, b.String())
		} else {
			assert.True(t, p.Render.DepthStencil.DepthWriteEnabled, b.String())
			assert.Nil(t, p.Render.Targets[0].Blend, b.String())
		}
	}
	assert.Equal(t, "fs_glyph", findPipeline(t, dev, "draw.opaque-glyph").Render.FragmentEntry)
	assert.Equal(t, "fs_circle", findPipeline(t, dev, "draw.transparent-circle").Render.FragmentEntry)
}

func TestSpriteRecord(t *testing.T) {
	d := NewDrawStage(config.Default().Draw)

	d.Sprite(Sprite{X: 1, Y: 2, Width: 3, Height: 4, Color: common.RGBA(0.1, 0.2, 0.3, 1), Depth: 0.5, Rotation: 0.25})
	d.Sprite(Sprite{X: 5, Y: 6, UV: [4]float32{0.5, 0.5, 0.25, 0.25}, Color: common.RGBA(1, 1, 1, 1), Transparent: true})

	opaque := d.GetBatch(batch.OpaqueQuad).Data()
	assert.Equal(t, []float32{1, 2, 3, 4, 0, 0, 1, 1, 0.1, 0.2, 0.3, 1, 0.5, 0.25, 0, 0}, opaque)
	transparent := d.GetBatch(batch.TransparentQuad).Data()
	require.Len(t, transparent, ShapeLayout.Stride)
	assert.Equal(t, []float32{0.5, 0.5, 0.25, 0.25}, transparent[4:8])
	assert.Equal(t, 2, d.Instances())

	d.Clear()
	assert.Zero(t, d.Instances())
}

func TestCircleAndGlyphRecords(t *testing.T) {
	d := NewDrawStage(config.Default().Draw)

	d.Circle(Circle{X: 10, Y: 20, Radius: 5, Color: common.RGBA(1, 0, 0, 0.5)})
	d.Glyph(Glyph{X: 1, Y: 2, Width: 8, Height: 12, UV: [4]float32{0, 0, 0.1, 0.1}, Color: common.RGBA(1, 1, 1, 1),
		Outline: common.RGBA(0, 0, 0, 1), Depth: 0.3, Range: 4, OutlineWidth: 0.2})

	circle := d.GetBatch(batch.TransparentCircle).Data()
	assert.Equal(t, []float32{10, 20, 10, 10}, circle[:4])

	glyph := d.GetBatch(batch.OpaqueGlyph).Data()
	require.Len(t, glyph, GlyphLayout.Stride)
	assert.Equal(t, []float32{0, 0, 0, 1}, glyph[12:16])
	assert.Equal(t, []float32{0.3, 4, 0.2, 0}, glyph[16:20])
}

func TestBounds(t *testing.T) {
	d := NewDrawStage(config.Default().Draw)
	_, _, ok := d.Bounds()
	assert.False(t, ok)

	d.Sprite(Sprite{Y: 40, Color: common.RGBA(1, 1, 1, 1)})
	d.Circle(Circle{Y: -3, Color: common.RGBA(1, 1, 1, 0.2)})
	d.Glyph(Glyph{Y: 90, Color: common.RGBA(1, 1, 1, 1)})

	lo, hi, ok := d.Bounds()
	require.True(t, ok)
	assert.Equal(t, float32(-3), lo)
	assert.Equal(t, float32(90), hi)
}

func TestDrawOpaqueBeforeSortedTransparent(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)

	white := common.RGBA(1, 1, 1, 1)
	s.draw.Sprite(Sprite{Y: 10, Color: common.RGBA(1, 1, 1, 0.5)})
	s.draw.Sprite(Sprite{Y: 5, Color: white})
	s.draw.Sprite(Sprite{Y: 1, Color: white, Transparent: true})
	s.draw.Glyph(Glyph{Y: 3, Color: white})
	dev.ResetCalls()

	require.NoError(t, s.draw.UsePipeline(frame))

	assert.Equal(t, []string{"draw.opaque-quad", "draw.opaque-glyph", "draw.transparent-quad"},
		labels(dev.CallsOf(gputest.OpSetPipeline)))
	draws := dev.CallsOf(gputest.OpDrawIndexed)
	require.Len(t, draws, 3)
	assert.Equal(t, []uint64{6, 1, 0}, draws[0].Args)
	assert.Equal(t, []uint64{6, 2, 0}, draws[2].Args)

	// The glyph batch binds the font atlas group.
	groups := dev.CallsOf(gputest.OpSetBindGroup)
	assert.Equal(t, []string{groupDrawCamera, groupDrawAtlas, groupDrawCamera, groupDrawFont, groupDrawCamera, groupDrawAtlas},
		labels(groups))

	transparent := s.draw.GetBatch(batch.TransparentQuad).Data()
	assert.Equal(t, float32(1), transparent[ShapeLayout.YField])
	assert.Equal(t, float32(10), transparent[ShapeLayout.Stride+ShapeLayout.YField])

	require.Len(t, dev.RenderPasses, 1)
	desc := dev.RenderPasses[0]
	assert.Equal(t, wgpu.Color{A: 1}, desc.ColorAttachments[0].ClearValue)
	require.NotNil(t, desc.Depth)
	assert.Equal(t, float32(1), desc.Depth.ClearValue)

	writes := dev.CallsOf(gputest.OpWriteBuffer)
	require.NotEmpty(t, writes)
	assert.Equal(t, BufferCamera, writes[0].Label)
	assert.Equal(t, []uint64{0, CameraUniformSize}, writes[0].Args)

	snap := frame.Counters.Snapshot()
	assert.Equal(t, 3, snap.DrawCalls)
	assert.Equal(t, 4, snap.Instances[NameDraw])
}

func TestEmptyDrawStillClears(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	dev.ResetCalls()

	require.NoError(t, s.draw.UsePipeline(newTestFrame(t, dev, ctx)))
	assert.Len(t, dev.RenderPasses, 1)
	assert.Empty(t, dev.CallsOf(gputest.OpDrawIndexed))
}

func TestVariantCacheEvicts(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx, WithMaxVariants(2))

	created := 0
	for _, p := range dev.Pipelines {
		if strings.HasPrefix(p.Label, "draw.") {
			created++
		}
	}
	assert.Equal(t, 2, created)

	s.draw.Glyph(Glyph{Color: common.RGBA(1, 1, 1, 1)})
	require.NoError(t, s.draw.UsePipeline(newTestFrame(t, dev, ctx)))

	// The glyph variant was created on use and pushed out the least recently used quad variant.
	assert.True(t, findPipeline(t, dev, "draw.opaque-quad").Released)
	assert.False(t, findPipeline(t, dev, "draw.opaque-circle").Released)
	assert.False(t, findPipeline(t, dev, "draw.opaque-glyph").Released)
}

func TestCustomAtlas(t *testing.T) {
	_, ctx := newTestContext(t)
	_, err := ctx.Registry.UploadTexture("sprites", common.TextureStagingData{Width: 2, Height: 1, Pixels: make([]byte, 8)})
	require.NoError(t, err)
	newTestStages(t, ctx, WithSpriteAtlas("sprites"))

	group := ctx.Registry.BindGroup(groupDrawAtlas).Group.(*gputest.BindGroup)
	assert.Same(t, ctx.Registry.Texture("sprites").View, group.Desc.Entries[0].TextureView)
}
