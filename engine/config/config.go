// Package config holds the render configuration: feature toggles, output resolution, draw conventions and
// the parameters of every post-processing stage. A Config is a plain value; stages receive copies.
package config

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/batch"
)

// MaxBloomPasses bounds the bloom mip chain depth. A 4096 pixel target reaches one pixel at level 12.
const MaxBloomPasses = 12

// Section names one group of the configuration.
type Section string

const (
	SectionFeatures    Section = "features"
	SectionResolution  Section = "resolution"
	SectionDraw        Section = "draw"
	SectionBloom       Section = "bloom"
	SectionScreen      Section = "screen"
	SectionPostProcess Section = "postprocess"
	SectionLighting    Section = "lighting"
)

// ErrUnknownSection is returned by Config.Section for a name that is not a Section constant.
var ErrUnknownSection = errors.New("config: unknown section")

// Features toggles optional stages. A disabled stage stays in the stage list and returns early.
type Features struct {
	Bloom           bool `toml:"bloom" yaml:"bloom"`
	Lighting        bool `toml:"lighting" yaml:"lighting"`
	ColorCorrection bool `toml:"color_correction" yaml:"color_correction"`
	PostProcess     bool `toml:"post_process" yaml:"post_process"`
	UI              bool `toml:"ui" yaml:"ui"`
	// Timestamps requests GPU timestamp queries. Ignored when the adapter does not support them.
	Timestamps bool `toml:"timestamps" yaml:"timestamps"`
}

// Resolution is the initial output size and presentation mode.
type Resolution struct {
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
	VSync  bool   `toml:"vsync" yaml:"vsync"`
}

// Size returns the resolution as a common.Size.
func (r Resolution) Size() common.Size {
	return common.Size{Width: r.Width, Height: r.Height}
}

// Draw holds the conventions of the sprite pass.
type Draw struct {
	Origin    common.DrawOrigin `toml:"origin" yaml:"origin"`
	SortOrder batch.SortOrder   `toml:"sort_order" yaml:"sort_order"`
	// InitialCapacity is the record capacity every batch node starts with.
	InitialCapacity int          `toml:"initial_capacity" yaml:"initial_capacity"`
	ClearColor      common.Color `toml:"clear_color" yaml:"clear_color"`
}

// Bloom holds the bloom graph parameters.
type Bloom struct {
	// Passes is the mip chain depth N.
	Passes    int     `toml:"passes" yaml:"passes"`
	Threshold float32 `toml:"threshold" yaml:"threshold"`
	Knee      float32 `toml:"knee" yaml:"knee"`
	Intensity float32 `toml:"intensity" yaml:"intensity"`
	// Scatter blends each upsampled level with the level below it.
	Scatter float32 `toml:"scatter" yaml:"scatter"`
}

// Screen holds the color grading applied when converting HDR to LDR.
type Screen struct {
	Brightness float32 `toml:"brightness" yaml:"brightness"`
	Contrast   float32 `toml:"contrast" yaml:"contrast"`
	Saturation float32 `toml:"saturation" yaml:"saturation"`
	// Hue is a rotation in degrees.
	Hue      float32 `toml:"hue" yaml:"hue"`
	Gamma    float32 `toml:"gamma" yaml:"gamma"`
	Exposure float32 `toml:"exposure" yaml:"exposure"`
}

// PostProcess holds the LDR screen effects. All zero disables the pass.
type PostProcess struct {
	Vignette        float32 `toml:"vignette" yaml:"vignette"`
	Scanlines       float32 `toml:"scanlines" yaml:"scanlines"`
	ChromaticOffset float32 `toml:"chromatic_offset" yaml:"chromatic_offset"`
}

// Active reports whether any effect is enabled.
func (p PostProcess) Active() bool {
	return p.Vignette != 0 || p.Scanlines != 0 || p.ChromaticOffset != 0
}

// Lighting holds the 2D light pass parameters.
type Lighting struct {
	// Ambient is the global illumination every pixel receives.
	Ambient   common.Color `toml:"ambient" yaml:"ambient"`
	MaxLights int          `toml:"max_lights" yaml:"max_lights"`
}

// Config is the complete render configuration.
type Config struct {
	Features    Features    `toml:"features" yaml:"features"`
	Resolution  Resolution  `toml:"resolution" yaml:"resolution"`
	Draw        Draw        `toml:"draw" yaml:"draw"`
	Bloom       Bloom       `toml:"bloom" yaml:"bloom"`
	Screen      Screen      `toml:"screen" yaml:"screen"`
	PostProcess PostProcess `toml:"postprocess" yaml:"postprocess"`
	Lighting    Lighting    `toml:"lighting" yaml:"lighting"`
}

// Default returns the configuration every loaded file is layered over.
func Default() Config {
	return Config{
		Features: Features{
			Bloom:           true,
			Lighting:        true,
			ColorCorrection: true,
			UI:              true,
			Timestamps:      true,
		},
		Resolution: Resolution{Width: 1280, Height: 720, VSync: true},
		Draw: Draw{
			Origin:          common.OriginTopLeft,
			SortOrder:       batch.Ascending,
			InitialCapacity: 256,
			ClearColor:      common.RGBA(0, 0, 0, 1),
		},
		Bloom: Bloom{
			Passes:    5,
			Threshold: 1.0,
			Knee:      0.5,
			Intensity: 0.8,
			Scatter:   0.7,
		},
		Screen: Screen{
			Brightness: 0,
			Contrast:   1,
			Saturation: 1,
			Hue:        0,
			Gamma:      2.2,
			Exposure:   1,
		},
		Lighting: Lighting{
			Ambient:   common.RGBA(1, 1, 1, 1),
			MaxLights: 1024,
		},
	}
}

// Validate reports every invalid field, joined.
//
// Returns:
//   - error: nil when the configuration is usable
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}

	check(c.Resolution.Width > 0 && c.Resolution.Height > 0, "resolution %dx%d must be non-zero", c.Resolution.Width, c.Resolution.Height)
	check(c.Draw.Origin == common.OriginTopLeft || c.Draw.Origin == common.OriginBottomLeft, "draw.origin %q must be %q or %q", c.Draw.Origin, common.OriginTopLeft, common.OriginBottomLeft)
	check(c.Draw.SortOrder == batch.Ascending || c.Draw.SortOrder == batch.Descending, "draw.sort_order %q must be %q or %q", c.Draw.SortOrder, batch.Ascending, batch.Descending)
	check(c.Draw.InitialCapacity > 0, "draw.initial_capacity %d must be positive", c.Draw.InitialCapacity)
	check(c.Bloom.Passes >= 1 && c.Bloom.Passes <= MaxBloomPasses, "bloom.passes %d must be in [1, %d]", c.Bloom.Passes, MaxBloomPasses)
	check(c.Bloom.Threshold >= 0, "bloom.threshold %g must not be negative", c.Bloom.Threshold)
	check(c.Bloom.Scatter >= 0 && c.Bloom.Scatter <= 1, "bloom.scatter %g must be in [0, 1]", c.Bloom.Scatter)
	check(c.Screen.Gamma > 0, "screen.gamma %g must be positive", c.Screen.Gamma)
	check(c.Screen.Exposure >= 0, "screen.exposure %g must not be negative", c.Screen.Exposure)
	check(c.Lighting.MaxLights > 0, "lighting.max_lights %d must be positive", c.Lighting.MaxLights)

	return errors.Join(errs...)
}

// Section returns a copy of one section.
//
// Parameters:
//   - s: the section name
//
// Returns:
//   - any: the section value (Features, Resolution, Draw, Bloom, Screen, PostProcess or Lighting)
//   - error: ErrUnknownSection
func (c Config) Section(s Section) (any, error) {
	switch s {
	case SectionFeatures:
		return c.Features, nil
	case SectionResolution:
		return c.Resolution, nil
	case SectionDraw:
		return c.Draw, nil
	case SectionBloom:
		return c.Bloom, nil
	case SectionScreen:
		return c.Screen, nil
	case SectionPostProcess:
		return c.PostProcess, nil
	case SectionLighting:
		return c.Lighting, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownSection, s)
	}
}
