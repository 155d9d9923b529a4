package stage

import (
	"testing"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy2d/engine/profiler"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSize = common.Size{Width: 800, Height: 600}

func newTestContext(t *testing.T) (*gputest.Device, *Context) {
	t.Helper()
	dev := gputest.NewDevice()
	ctx := &Context{
		Device:        dev,
		Registry:      registry.NewRegistry(dev, registry.WithInitialSize(testSize)),
		Config:        config.Default(),
		SurfaceFormat: dev.Format(),
	}
	require.NoError(t, RegisterShared(ctx))
	return dev, ctx
}

// testStages is every stage of this package, created against one context. The bloom output is
// registered in place of the bloom stage.
type testStages struct {
	draw     DrawStage
	lighting LightingStage
	grade    Stage
	post     Stage
	ui       UIStage
	present  Stage
}

func (s testStages) all() []Stage {
	return []Stage{s.draw, s.lighting, s.grade, s.post, s.ui, s.present}
}

func newTestStages(t *testing.T, ctx *Context, drawOptions ...DrawStageBuilderOption) testStages {
	t.Helper()
	s := testStages{
		draw:     NewDrawStage(ctx.Config.Draw, drawOptions...),
		lighting: NewLightingStage(ctx.Config.Lighting),
		grade:    NewColorCorrectionStage(),
		post:     NewPostProcessStage(),
		ui:       NewUIStage(ctx.Config.Draw),
		present:  NewPresentStage(),
	}
	_, err := ctx.Registry.RegisterResolutionTexture(TextureBloomOutput, renderTarget(HDRFormat), true)
	require.NoError(t, err)
	for _, st := range s.all() {
		require.NoError(t, st.CreateTargets(ctx), st.Name())
	}
	for _, st := range s.all() {
		require.NoError(t, st.CreatePipeline(ctx), st.Name())
	}
	t.Cleanup(func() {
		for _, st := range s.all() {
			st.Release()
		}
	})
	return s
}

func newTestFrame(t *testing.T, dev *gputest.Device, ctx *Context) *Frame {
	t.Helper()
	enc, err := dev.CreateCommandEncoder("frame")
	require.NoError(t, err)
	surface, err := dev.AcquireView()
	require.NoError(t, err)
	return &Frame{
		Encoder:  enc,
		Surface:  surface,
		Size:     ctx.Registry.Size(),
		Params:   NewParams(ctx.Config),
		Counters: profiler.NewCounters(),
	}
}

func findPipeline(t *testing.T, dev *gputest.Device, label string) *gputest.Pipeline {
	t.Helper()
	for _, p := range dev.Pipelines {
		if p.Label == label {
			return p
		}
	}
	require.Failf(t, "pipeline not created", "no pipeline %q", label)
	return nil
}

func labels(calls []gputest.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Label
	}
	return out
}

type namedStage struct {
	base
}

func (n *namedStage) CreatePipeline(*Context) error { return nil }
func (n *namedStage) UsePipeline(*Frame) error      { return nil }
func (n *namedStage) Release()                      {}

func named(names ...string) []Stage {
	out := make([]Stage, len(names))
	for i, name := range names {
		out[i] = &namedStage{base: base{name: name}}
	}
	return out
}

func TestValidateOrder(t *testing.T) {
	require.NoError(t, ValidateOrder(named(Order...)))

	err := ValidateOrder(named(NameDraw, NameBloom, NameLighting, NameColorCorrection, NamePostProcess, NameUI, NamePresent))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want")

	err = ValidateOrder(named(NameDraw, NameDraw, NameBloom, NameColorCorrection, NamePostProcess, NameUI, NamePresent))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"draw" appears twice`)

	assert.Error(t, ValidateOrder(named(NameDraw, NameLighting)))
}

func TestRegisterShared(t *testing.T) {
	dev, ctx := newTestContext(t)
	reg := ctx.Registry

	indices := reg.Buffer(BufferQuadIndices).(*gputest.Buffer)
	assert.Equal(t, []byte{0, 0, 1, 0, 2, 0, 2, 0, 1, 0, 3, 0}, indices.Data)
	assert.Equal(t, uint64(CameraUniformSize), reg.Buffer(BufferCamera).Size())
	assert.Equal(t, uint64(CameraUniformSize), reg.Buffer(BufferScreenCamera).Size())
	assert.Equal(t, common.Size{Width: 1, Height: 1}, reg.Texture(TextureWhite).Size())
	assert.Len(t, dev.Samplers, 2)

	// A second call collides with the first registrations.
	assert.ErrorIs(t, RegisterShared(ctx), registry.ErrDuplicate)
}

func TestStagesCreateEveryTarget(t *testing.T) {
	_, ctx := newTestContext(t)
	newTestStages(t, ctx)

	for _, name := range []string{TextureSceneHDR, TextureSceneDepth, TextureLightHDR, TextureLDR, TexturePost, TextureUI} {
		tex, err := ctx.Registry.LookupTexture(name)
		require.NoError(t, err, name)
		assert.True(t, tex.ResolutionDependent, name)
		assert.Equal(t, testSize, tex.Size(), name)
	}
	assert.Equal(t, DepthFormat, ctx.Registry.Texture(TextureSceneDepth).Texture.Format())
}

func TestFullFrameRecordsStagesInOrder(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)
	frame.Params.PostProcess.Vignette = 0.4
	frame.Params.Features.PostProcess = true

	s.draw.Sprite(Sprite{X: 10, Y: 10, Width: 4, Height: 4, Color: common.RGBA(1, 1, 1, 1)})
	s.lighting.AddLight(Light{X: 10, Y: 10, Radius: 50, Intensity: 1, Color: common.RGBA(1, 0.5, 0, 1)})
	s.ui.Rect(Rect{X: 0, Y: 0, Width: 100, Height: 20, Color: common.RGBA(0, 0, 0, 0.5)})
	dev.ResetCalls()

	for _, st := range s.all() {
		require.NoError(t, st.UsePipeline(frame), st.Name())
	}

	assert.Equal(t, []string{NameDraw, NameLighting, NameColorCorrection, NamePostProcess, NameUI, NamePresent},
		labels(dev.CallsOf(gputest.OpBeginRenderPass)))
	assert.Equal(t, TexturePost, frame.LDR)

	snap := frame.Counters.Snapshot()
	assert.Equal(t, 1, snap.Instances[NameDraw])
	assert.Equal(t, 1, snap.Instances[NameLighting])
	assert.Equal(t, 1, snap.Instances[NameUI])
	// One instanced draw each for sprites, lights and UI, plus three fullscreen passes.
	assert.Equal(t, 6, snap.DrawCalls)
}

func TestResizeRebuildsStageBindGroups(t *testing.T) {
	_, ctx := newTestContext(t)
	newTestStages(t, ctx)
	before := ctx.Registry.BindGroup(presentGroups[TextureLDR]).Group

	require.NoError(t, ctx.Registry.RebuildResolutionDependent(common.Size{Width: 1024, Height: 768}))

	after := ctx.Registry.BindGroup(presentGroups[TextureLDR]).Group.(*gputest.BindGroup)
	assert.True(t, before.(*gputest.BindGroup).Released)
	assert.Same(t, ctx.Registry.Texture(TextureLDR).View, after.Desc.Entries[0].TextureView)
	// The camera group binds no target and is left alone.
	assert.False(t, ctx.Registry.BindGroup(groupDrawCamera).Group.(*gputest.BindGroup).Released)
}
