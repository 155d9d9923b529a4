// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// Size is a pixel resolution. It is the unit every resolution-dependent resource is derived from.
type Size struct {
	// Width is the horizontal resolution in pixels.
	Width uint32
	// Height is the vertical resolution in pixels.
	Height uint32
}

// Empty reports whether either dimension is zero. A zero-sized surface cannot be configured,
// which happens while a window is minimized.
func (s Size) Empty() bool {
	return s.Width == 0 || s.Height == 0
}

// Shift returns the size of mip level n of a texture with this base size, clamped so that
// neither dimension drops below one pixel.
//
// Parameters:
//   - n: the mip level
//
// Returns:
//   - Size: the mip level size
func (s Size) Shift(n uint32) Size {
	return Size{Width: max(1, s.Width>>n), Height: max(1, s.Height>>n)}
}

// Color is a linear RGBA color with components in the [0, 1] range (HDR stages may exceed 1).
type Color [4]float32

// RGBA builds a Color from its components.
func RGBA(r, g, b, a float32) Color {
	return Color{r, g, b, a}
}

// White is the neutral tint for sprites.
var White = Color{1, 1, 1, 1}

// ClipRect is an integer scissor rectangle in surface pixels.
type ClipRect = Rect[uint32]

// TextureStagingData holds RGBA pixel data for a user-content texture pending GPU upload.
// The registry uses it to create textures that survive resolution rebuilds.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels. This is required to correctly create the GPU texture and interpret the pixel data.
	Width uint32
	// Height is the height of the texture in pixels. This is required to correctly create the GPU texture and interpret the pixel data.
	Height uint32
}

// SamplerStagingData holds the configuration for a sampler pending GPU creation.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV specify the addressing mode for texture coordinates outside the [0, 1] range.
	AddressModeU, AddressModeV wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
}

// Descriptor converts the staging data into a sampler descriptor with the given label.
//
// Parameters:
//   - label: debug label for the sampler
//
// Returns:
//   - *wgpu.SamplerDescriptor: the descriptor, with LodMaxClamp defaulted to 32 when unset
func (s SamplerStagingData) Descriptor(label string) *wgpu.SamplerDescriptor {
	return &wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  s.AddressModeU,
		AddressModeV:  s.AddressModeV,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     s.MagFilter,
		MinFilter:     s.MinFilter,
		MipmapFilter:  s.MipmapFilter,
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   Coalesce(s.LodMaxClamp, 32),
		MaxAnisotropy: 1,
	}
}

// LinearClamp is the sampler used by every post-process stage.
var LinearClamp = SamplerStagingData{
	AddressModeU: wgpu.AddressModeClampToEdge,
	AddressModeV: wgpu.AddressModeClampToEdge,
	MagFilter:    wgpu.FilterModeLinear,
	MinFilter:    wgpu.FilterModeLinear,
	MipmapFilter: wgpu.MipmapFilterModeNearest,
}

// NearestRepeat is the sampler used by pixel-art sprite atlases.
var NearestRepeat = SamplerStagingData{
	AddressModeU: wgpu.AddressModeRepeat,
	AddressModeV: wgpu.AddressModeRepeat,
	MagFilter:    wgpu.FilterModeNearest,
	MinFilter:    wgpu.FilterModeNearest,
	MipmapFilter: wgpu.MipmapFilterModeNearest,
}
