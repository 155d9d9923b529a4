package stage

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func assertMatrix(t *testing.T, want, got [16]float32) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "element %d", i)
	}
}

func TestGradingMatrixDefaultsAreIdentity(t *testing.T) {
	assertMatrix(t, identity, GradingMatrix(config.Default().Screen))
}

func TestGradingMatrixFullHueTurnIsIdentity(t *testing.T) {
	s := config.Default().Screen
	s.Hue = 360
	assertMatrix(t, identity, GradingMatrix(s))
}

func TestGradingMatrixDesaturates(t *testing.T) {
	s := config.Default().Screen
	s.Saturation = 0
	m := GradingMatrix(s)

	// Every output channel is the luminance of the input.
	lum := [3]float32{lumR, lumG, lumB}
	for row := range 3 {
		for col := range 3 {
			assert.InDelta(t, lum[col], m[col*4+row], 1e-6, "row %d col %d", row, col)
		}
	}
}

func TestGradingMatrixContrastAndBrightness(t *testing.T) {
	s := config.Default().Screen
	s.Contrast = 2
	s.Brightness = 0.1
	m := GradingMatrix(s)

	assert.InDelta(t, 2, m[0], 1e-5)
	assert.InDelta(t, 2, m[5], 1e-5)
	assert.InDelta(t, 2, m[10], 1e-5)
	for row := range 3 {
		assert.InDelta(t, -0.4, m[12+row], 1e-6)
	}
	assert.Equal(t, float32(1), m[15])
}

func TestGradingUniform(t *testing.T) {
	p := NewParams(config.Default())
	u := gradingUniform(p)
	assert.InDelta(t, 1/2.2, u[17], 1e-6)
	assert.Equal(t, float32(1), u[16])
	assert.Equal(t, float32(1), u[18])

	p.Screen.Saturation = 0
	p.Features.ColorCorrection = false
	p.Features.Lighting = false
	u = gradingUniform(p)
	var m [16]float32
	copy(m[:], u[:16])
	assertMatrix(t, identity, m)
	assert.Equal(t, float32(1), u[17])
	assert.Zero(t, u[18])
}

func TestColorCorrectionReadsBloomOutputWhenBloomRan(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)

	for _, bloom := range []bool{true, false} {
		frame := newTestFrame(t, dev, ctx)
		frame.Params.Features.Bloom = bloom
		dev.ResetCalls()

		require.NoError(t, s.grade.UsePipeline(frame))
		want := groupGradeScene
		if bloom {
			want = groupGradeBloom
		}
		assert.Equal(t, []string{want}, labels(dev.CallsOf(gputest.OpSetBindGroup)))
		assert.Equal(t, TextureLDR, frame.LDR)
		assert.Same(t, ctx.Registry.Texture(TextureLDR).View, dev.RenderPasses[0].ColorAttachments[0].View)
	}
}

func TestColorCorrectionUploadsGrading(t *testing.T) {
	dev, ctx := newTestContext(t)
	s := newTestStages(t, ctx)
	frame := newTestFrame(t, dev, ctx)
	frame.Params.Screen.Exposure = 2

	require.NoError(t, s.grade.UsePipeline(frame))

	data := ctx.Registry.Buffer(bufferGrading).(*gputest.Buffer).Data
	require.Len(t, data, gradingUniformSize)
	exposure := math.Float32frombits(binary.LittleEndian.Uint32(data[16*4:]))
	assert.Equal(t, float32(2), exposure)
}
