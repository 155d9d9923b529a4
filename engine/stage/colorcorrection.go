package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	bgp "github.com/Carmen-Shannon/oxy2d/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer/pipeline"
	"github.com/chewxy/math32"
)

const (
	bufferGrading = "colorcorrection.grading"
	// The pass reads the bloom output when bloom ran this frame and the raw scene otherwise.
	groupGradeBloom = "colorcorrection.bloom"
	groupGradeScene = "colorcorrection.scene"
)

// gradingUniformSize is the WGSL Grading struct: a matrix and the exposure, inverse gamma and lighting
// weight.
const gradingUniformSize = 80

// Rec. 709 luminance weights, as used by the hue and saturation matrices.
const (
	lumR = 0.213
	lumG = 0.715
	lumB = 0.072
)

// mat3 is a row-major 3x3 color matrix.
type mat3 [3][3]float32

func (a mat3) mul(b mat3) mat3 {
	var out mat3
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func hueMatrix(degrees float32) mat3 {
	rad := degrees * math32.Pi / 180
	c, s := math32.Cos(rad), math32.Sin(rad)
	return mat3{
		{lumR + c*(1-lumR) - s*lumR, lumG - c*lumG - s*lumG, lumB - c*lumB + s*(1-lumB)},
		{lumR - c*lumR + s*0.143, lumG + c*(1-lumG) + s*0.140, lumB - c*lumB - s*0.283},
		{lumR - c*lumR - s*(1-lumR), lumG - c*lumG + s*lumG, lumB + c*(1-lumB) + s*lumB},
	}
}

func saturationMatrix(sat float32) mat3 {
	m := mat3{}
	lum := [3]float32{lumR, lumG, lumB}
	for i := range 3 {
		for j := range 3 {
			m[i][j] = (1 - sat) * lum[j]
		}
		m[i][i] += sat
	}
	return m
}

// GradingMatrix builds the column-major color matrix of the screen settings: hue rotation, then
// saturation, then contrast around mid grey, then brightness. The defaults produce the identity.
//
// Parameters:
//   - s: the screen settings
//
// Returns:
//   - [16]float32: the matrix, applied to vec4(rgb, 1)
func GradingMatrix(s config.Screen) [16]float32 {
	m := saturationMatrix(s.Saturation).mul(hueMatrix(s.Hue))
	offset := 0.5*(1-s.Contrast) + s.Brightness

	var out [16]float32
	for row := range 3 {
		for col := range 3 {
			out[col*4+row] = m[row][col] * s.Contrast
		}
		out[12+row] = offset
	}
	out[15] = 1
	return out
}

// colorCorrectionStage tonemaps the HDR scene, lit and graded, into the LDR target.
type colorCorrectionStage struct {
	base
	pipeline pipeline.Pipeline
}

var _ Stage = &colorCorrectionStage{}

// NewColorCorrectionStage creates the color correction stage.
func NewColorCorrectionStage() Stage {
	return &colorCorrectionStage{base: base{name: NameColorCorrection}}
}

func (c *colorCorrectionStage) CreateTargets(ctx *Context) error {
	_, err := ctx.Registry.RegisterResolutionTexture(TextureLDR, renderTarget(LDRFormat), false)
	return err
}

func (c *colorCorrectionStage) CreatePipeline(ctx *Context) error {
	c.ctx = ctx
	var err error
	if c.pipeline, err = createFullscreen(ctx, NameColorCorrection, "colorcorrection", "fs_grade", LDRFormat); err != nil {
		return err
	}
	if _, err := ctx.Registry.CreateBuffer(bufferGrading, uniformDescriptor(gradingUniformSize)); err != nil {
		return err
	}
	for _, g := range [][2]string{{groupGradeBloom, TextureBloomOutput}, {groupGradeScene, TextureSceneHDR}} {
		name, source := g[0], g[1]
		p := bgp.NewBindGroupProvider(name,
			bgp.WithBuffer(0, bufferGrading),
			bgp.WithTextureView(1, source),
			bgp.WithTextureView(2, TextureLightHDR),
			bgp.WithSampler(3, SamplerLinear),
		)
		if _, err := p.Register(ctx.Registry, c.pipeline.Layout(0)); err != nil {
			return err
		}
	}
	return nil
}

// gradingUniform packs the Grading struct. A disabled stage still tonemaps, with no grading.
func gradingUniform(p Params) [gradingUniformSize / 4]float32 {
	var u [gradingUniformSize / 4]float32
	screen := p.Screen
	if !p.Features.ColorCorrection {
		screen = config.Screen{Contrast: 1, Saturation: 1, Gamma: 1, Exposure: 1}
	}
	m := GradingMatrix(screen)
	copy(u[:16], m[:])
	u[16] = screen.Exposure
	u[17] = 1 / screen.Gamma
	if p.Features.Lighting {
		u[18] = 1
	}
	return u
}

func (c *colorCorrectionStage) UsePipeline(frame *Frame) error {
	reg := c.ctx.Registry
	u := gradingUniform(frame.Params)
	if err := c.ctx.Device.WriteBuffer(reg.Buffer(bufferGrading), 0, common.SliceToBytes(u[:])); err != nil {
		return fmt.Errorf("stage: write grading: %w", err)
	}
	group := groupGradeScene
	if frame.Params.Features.Bloom {
		group = groupGradeBloom
	}
	frame.LDR = TextureLDR
	return drawFullscreen(frame, NameColorCorrection, reg.Texture(TextureLDR).View, c.pipeline, reg.BindGroup(group).Group)
}

func (c *colorCorrectionStage) Release() {
	if c.pipeline != nil {
		c.pipeline.Release()
	}
}
