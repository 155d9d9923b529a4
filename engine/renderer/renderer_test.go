package renderer

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy2d/engine/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Resolution.Width, cfg.Resolution.Height = 800, 600
	cfg.Bloom.Passes = 3
	return cfg
}

func newTestRenderer(t *testing.T, options ...RendererBuilderOption) (*gputest.Device, Renderer) {
	t.Helper()
	dev := gputest.NewDevice()
	r := NewRenderer(dev, testConfig(), options...)
	require.NoError(t, r.Init())
	t.Cleanup(r.Release)
	return dev, r
}

func renderPassLabels(dev *gputest.Device) []string {
	var out []string
	for _, p := range dev.RenderPasses {
		out = append(out, p.Label)
	}
	return out
}

// failingStage wraps a real stage and fails when recorded.
type failingStage struct {
	stage.Stage
	err error
}

func (f *failingStage) UsePipeline(*stage.Frame) error { return f.err }

func TestNewRendererRequiresDevice(t *testing.T) {
	assert.PanicsWithValue(t, "renderer: NewRenderer requires a non-nil Device", func() {
		NewRenderer(nil, config.Default())
	})
}

func TestBeginBatchBeforeInit(t *testing.T) {
	r := NewRenderer(gputest.NewDevice(), testConfig())
	assert.ErrorIs(t, r.BeginBatch(), ErrState)
}

func TestFrameLifecycle(t *testing.T) {
	dev, r := newTestRenderer(t)
	assert.Equal(t, []common.Size{{Width: 800, Height: 600}}, dev.Configured)
	assert.Equal(t, StateIdle, r.State())

	require.NoError(t, r.BeginBatch())
	assert.Equal(t, StateRecording, r.State())
	assert.ErrorIs(t, r.BeginBatch(), ErrState)

	r.Draw().Sprite(stage.Sprite{X: 10, Y: 20, Width: 8, Height: 8, Color: common.RGBA(1, 1, 1, 1)})
	r.UI().Rect(stage.Rect{Width: 50, Height: 20, Color: common.RGBA(0, 0, 0, 0.5)})
	require.NoError(t, r.EndBatch())

	assert.Equal(t, StateIdle, r.State())
	assert.Equal(t, 1, dev.Submits)
	assert.Equal(t, 1, dev.Presented)
	assert.Equal(t, []string{"draw", "lighting", "colorcorrection", "ui", "present"}, renderPassLabels(dev))
	require.Len(t, dev.ComputePasses, 1)
	assert.Equal(t, "bloom", dev.ComputePasses[0].Label)

	snap := r.Counters().Snapshot()
	assert.Equal(t, 1, snap.Instances[stage.NameDraw])
	assert.Equal(t, 1, snap.Instances[stage.NameUI])
	assert.Equal(t, 10, snap.Dispatches)
	assert.Zero(t, snap.DroppedFrames)

	assert.ErrorIs(t, r.EndBatch(), ErrState)
}

func TestBeginBatchClearsThePreviousFrame(t *testing.T) {
	_, r := newTestRenderer(t)
	require.NoError(t, r.BeginBatch())
	r.Draw().Sprite(stage.Sprite{Width: 1, Height: 1})
	require.NoError(t, r.EndBatch())

	require.NoError(t, r.BeginBatch())
	assert.Zero(t, r.Draw().Instances())
	assert.Zero(t, r.Counters().Snapshot().DrawCalls)
	require.NoError(t, r.EndBatch())
}

func TestResizeWhileRecordingDropsTheFrame(t *testing.T) {
	dev, r := newTestRenderer(t)
	generation := r.Registry().Generation()

	require.NoError(t, r.BeginBatch())
	r.Resize(1024, 768)
	require.NoError(t, r.EndBatch())

	assert.Equal(t, StateIdle, r.State())
	assert.Zero(t, dev.Submits)
	assert.Zero(t, dev.Presented)
	assert.Empty(t, dev.RenderPasses)
	assert.True(t, dev.Encoders[len(dev.Encoders)-1].Released)
	assert.Equal(t, 1, r.Counters().Snapshot().DroppedFrames)
	assert.True(t, r.Resolution().Dirty)

	require.NoError(t, r.BeginBatch())
	assert.False(t, r.Resolution().Dirty)
	assert.Equal(t, common.Size{Width: 1024, Height: 768}, dev.Configured[len(dev.Configured)-1])
	assert.Equal(t, common.Size{Width: 1024, Height: 768}, r.Registry().Size())
	assert.Equal(t, generation+1, r.Registry().Generation())
	assert.Equal(t, uint32(1024), r.Registry().Texture(stage.TextureSceneHDR).Size().Width)
	require.NoError(t, r.EndBatch())
	assert.Zero(t, dev.Submits)

	require.NoError(t, r.BeginBatch())
	require.NoError(t, r.EndBatch())
	assert.Equal(t, 1, dev.Submits)
	// Dropped frames are cumulative; the per-frame reset keeps them.
	assert.Equal(t, 2, r.Counters().Snapshot().DroppedFrames)
}

func TestRebuildFrameSubmitsNothing(t *testing.T) {
	dev, r := newTestRenderer(t)
	encoders := len(dev.Encoders)
	r.Resize(1024, 768)

	require.NoError(t, r.BeginBatch())
	assert.Equal(t, StateRecording, r.State())
	assert.Len(t, dev.Encoders, encoders, "a rebuild frame opens no encoder")
	r.Draw().Sprite(stage.Sprite{Width: 4, Height: 4})
	require.NoError(t, r.EndBatch())

	assert.Equal(t, StateIdle, r.State())
	assert.Zero(t, dev.Submits)
	assert.Zero(t, dev.Presented)
	assert.Empty(t, dev.RenderPasses)
	assert.Empty(t, dev.ComputePasses)
	assert.Equal(t, 1, r.Counters().Snapshot().DroppedFrames)
	assert.Equal(t, common.Size{Width: 1024, Height: 768}, r.Registry().Size())

	require.NoError(t, r.BeginBatch())
	assert.Zero(t, r.Draw().Instances())
	require.NoError(t, r.EndBatch())
	assert.Equal(t, 1, dev.Submits)
}

func TestResizeToCurrentSizeIsIgnored(t *testing.T) {
	dev, r := newTestRenderer(t)
	r.Resize(800, 600)
	assert.False(t, r.Resolution().Dirty)

	require.NoError(t, r.BeginBatch())
	require.NoError(t, r.EndBatch())
	assert.Len(t, dev.Configured, 1)
	assert.Equal(t, 1, dev.Submits)
}

func TestMinimisedWindowDropsFrames(t *testing.T) {
	dev, r := newTestRenderer(t)
	r.Resize(0, 0)

	require.NoError(t, r.BeginBatch())
	assert.True(t, r.Resolution().Dirty)
	assert.Equal(t, common.Size{Width: 800, Height: 600}, r.Registry().Size())
	require.NoError(t, r.EndBatch())
	assert.Zero(t, dev.Submits)
	assert.Equal(t, 1, r.Counters().Snapshot().DroppedFrames)
	assert.Len(t, dev.Configured, 1)

	r.Resize(640, 480)
	require.NoError(t, r.BeginBatch())
	assert.False(t, r.Resolution().Dirty)
	assert.Equal(t, common.Size{Width: 640, Height: 480}, r.Registry().Size())
	require.NoError(t, r.EndBatch())
	assert.Zero(t, dev.Submits)

	require.NoError(t, r.BeginBatch())
	require.NoError(t, r.EndBatch())
	assert.Equal(t, 1, dev.Submits)
	assert.Equal(t, 2, r.Counters().Snapshot().DroppedFrames)
}

func TestInitJoinsPipelineErrors(t *testing.T) {
	errUI := errors.New("ui pipeline")
	errPresent := errors.New("present pipeline")
	dev := gputest.NewDevice()
	dev.Fail["ui"] = errUI
	dev.Fail["present"] = errPresent

	r := NewRenderer(dev, testConfig(), WithWorkers(2))
	t.Cleanup(r.Release)
	err := r.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, errUI)
	assert.ErrorIs(t, err, errPresent)
	assert.Contains(t, err.Error(), `stage "ui": create pipeline`)
	assert.Contains(t, err.Error(), `stage "present": create pipeline`)
	assert.ErrorIs(t, r.BeginBatch(), ErrState)
}

func TestStageErrorAbortsTheFrame(t *testing.T) {
	errBoom := errors.New("boom")
	dev, r := newTestRenderer(t, WithStage(&failingStage{Stage: stage.NewPostProcessStage(), err: errBoom}))

	require.NoError(t, r.BeginBatch())
	err := r.EndBatch()
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), `stage "postprocess"`)

	assert.Equal(t, StateIdle, r.State())
	assert.Zero(t, dev.Submits)
	assert.Zero(t, dev.Presented)
	assert.True(t, dev.Encoders[len(dev.Encoders)-1].Released)
	assert.Equal(t, 1, r.Counters().Snapshot().DroppedFrames)
}

func TestTimestampsResolveEveryFrame(t *testing.T) {
	dev, r := newTestRenderer(t)
	require.NotNil(t, r.Timestamps())

	for range 2 {
		require.NoError(t, r.BeginBatch())
		require.NoError(t, r.EndBatch())
	}
	assert.Len(t, dev.CallsOf(gputest.OpResolveQuerySet), 2)
	assert.Zero(t, dev.PendingMaps())
	assert.Zero(t, r.Timestamps().Skipped())
	for _, p := range dev.RenderPasses {
		assert.NotNil(t, p.Timestamps, p.Label)
	}
}

func TestTimestampsOffWhenUnsupported(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Timestamps = false
	r := NewRenderer(dev, testConfig())
	t.Cleanup(r.Release)
	require.NoError(t, r.Init())
	assert.Nil(t, r.Timestamps())

	require.NoError(t, r.BeginBatch())
	require.NoError(t, r.EndBatch())
	for _, p := range dev.RenderPasses {
		assert.Nil(t, p.Timestamps, p.Label)
	}
	assert.Empty(t, dev.CallsOf(gputest.OpResolveQuerySet))
}

func TestGetConfigGroupReturnsStagedValues(t *testing.T) {
	_, r := newTestRenderer(t)

	screen := config.Screen{Contrast: 1.5, Saturation: 0.5, Gamma: 2, Exposure: 1.2}
	r.SetScreenSettings(screen)
	r.SetGlobalIllumination(common.RGBA(0.2, 0.2, 0.3, 1))
	r.SetBloom(config.Bloom{Passes: 9, Threshold: 2})
	r.Resize(1024, 768)

	got, err := r.GetConfigGroup(config.SectionScreen)
	require.NoError(t, err)
	assert.Equal(t, screen, got)

	got, err = r.GetConfigGroup(config.SectionLighting)
	require.NoError(t, err)
	assert.Equal(t, common.RGBA(0.2, 0.2, 0.3, 1), got.(config.Lighting).Ambient)

	got, err = r.GetConfigGroup(config.SectionBloom)
	require.NoError(t, err)
	assert.Equal(t, 3, got.(config.Bloom).Passes)
	assert.Equal(t, float32(2), got.(config.Bloom).Threshold)

	got, err = r.GetConfigGroup(config.SectionResolution)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), got.(config.Resolution).Width)

	_, err = r.GetConfigGroup("physics")
	assert.ErrorIs(t, err, config.ErrUnknownSection)
}

func TestStagedSettingsApplyAtTheNextFrame(t *testing.T) {
	dev, r := newTestRenderer(t)

	require.NoError(t, r.BeginBatch())
	features := config.Default().Features
	features.PostProcess = true
	features.Timestamps = false
	r.SetFeatures(features)
	r.SetPostProcess(config.PostProcess{Vignette: 0.4})
	require.NoError(t, r.EndBatch())

	assert.Contains(t, renderPassLabels(dev), "postprocess")
	got, err := r.GetConfigGroup(config.SectionFeatures)
	require.NoError(t, err)
	assert.True(t, got.(config.Features).Timestamps)
}

func TestFrameTimeIsMeasuredFromInit(t *testing.T) {
	now := time.Unix(100, 0)
	dev := gputest.NewDevice()
	cfg := testConfig()
	cfg.Features.PostProcess = true
	cfg.PostProcess.Scanlines = 0.3
	r := NewRenderer(dev, cfg, WithClock(func() time.Time { return now }))
	t.Cleanup(r.Release)
	require.NoError(t, r.Init())

	now = now.Add(2500 * time.Millisecond)
	require.NoError(t, r.BeginBatch())
	require.NoError(t, r.EndBatch())

	var params *gputest.Buffer
	for _, b := range dev.Buffers {
		if b.Label() == "postprocess.params" {
			params = b
		}
	}
	require.NotNil(t, params)
	assert.InDelta(t, 2.5, math.Float32frombits(binary.LittleEndian.Uint32(params.Data[12:])), 1e-6)
}

func TestSingleWorkerInit(t *testing.T) {
	dev, r := newTestRenderer(t, WithWorkers(1))
	require.NoError(t, r.BeginBatch())
	require.NoError(t, r.EndBatch())
	assert.Equal(t, 1, dev.Submits)
}

func TestLightsReachTheLightingStage(t *testing.T) {
	_, r := newTestRenderer(t)
	require.NoError(t, r.BeginBatch())
	assert.True(t, r.AddLight(stage.Light{X: 10, Y: 10, Radius: 50, Intensity: 1, Color: common.RGBA(1, 0.5, 0, 1)}))
	require.NoError(t, r.EndBatch())
	assert.Equal(t, 1, r.Counters().Snapshot().Instances[stage.NameLighting])
}

func TestReleaseFreesTheTimestampRing(t *testing.T) {
	dev := gputest.NewDevice()
	r := NewRenderer(dev, testConfig())
	require.NoError(t, r.Init())
	r.Release()

	assert.Nil(t, r.Timestamps())
	for _, q := range dev.Queries {
		assert.True(t, q.Released)
	}
}
