// Package bloom is the mip-chain bloom compute graph. A threshold pass extracts the bright parts of the
// HDR scene, N separable blur pairs walk down the mip chain, N-1 upsample passes walk back up blending
// each level with the one below it, and a present pass adds the result to the scene.
package bloom

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/stage"
)

// PassType is the compute pipeline a descriptor dispatches.
type PassType int

const (
	PassThreshold PassType = iota
	PassBlurX
	PassBlurY
	PassUpsample
	PassPresent

	passTypeCount
)

func (t PassType) String() string {
	switch t {
	case PassThreshold:
		return "threshold"
	case PassBlurX:
		return "blur_x"
	case PassBlurY:
		return "blur_y"
	case PassUpsample:
		return "upsample"
	case PassPresent:
		return "present"
	default:
		return fmt.Sprintf("pass(%d)", int(t))
	}
}

// Chain texture names. The chain and scratch textures hold the downsampled levels, up holds the
// upsampled levels and the output is full resolution.
const (
	TextureChain   = "bloom.chain"
	TextureScratch = "bloom.scratch"
	TextureUp      = "bloom.up"
	TextureOutput  = stage.TextureBloomOutput
)

// TextureRef is one mip level of a registered texture.
type TextureRef struct {
	Name string
	Mip  uint32
}

func (r TextureRef) String() string {
	return fmt.Sprintf("%s@%d", r.Name, r.Mip)
}

// Descriptor is one dispatch of the graph.
type Descriptor struct {
	Index int
	Type  PassType
	// Mip is the level the pass writes. It always equals Dest.Mip.
	Mip    uint32
	Source TextureRef
	// Secondary is the full-detail image an upsample or present pass blends with, or nil.
	Secondary *TextureRef
	Dest      TextureRef
}

// Count returns the number of descriptors Generate returns for n blur pairs: one threshold, n blur
// pairs and n-1 upsamples.
func Count(n int) int {
	return 1 + 2*n + (n - 1)
}

// MipForIndex returns the mip level descriptor i writes in a graph of n blur pairs. Downsample levels
// increase with i and upsample levels decrease with it.
//
// Parameters:
//   - i: the descriptor index, in [0, Count(n))
//   - n: the number of blur pairs, at least 1
//
// Returns:
//   - uint32: the mip level
func MipForIndex(i, n int) uint32 {
	if n < 1 || i < 0 || i >= Count(n) {
		panic(fmt.Sprintf("bloom: descriptor %d out of range for %d passes", i, n))
	}
	switch {
	case i == 0:
		return 0
	case i <= 2*n:
		return uint32((i - 1) / 2)
	default:
		return uint32(n - 2 - (i - 2*n - 1))
	}
}

// Generate builds the dispatch list of a graph with n blur pairs, not including the present pass.
//
// Parameters:
//   - n: the number of blur pairs, at least 1
//
// Returns:
//   - []Descriptor: Count(n) descriptors in dispatch order
func Generate(n int) []Descriptor {
	if n < 1 {
		panic(fmt.Sprintf("bloom: %d passes, want at least 1", n))
	}
	descs := make([]Descriptor, 0, Count(n))
	add := func(t PassType, source TextureRef, secondary *TextureRef, dest string) {
		i := len(descs)
		mip := MipForIndex(i, n)
		descs = append(descs, Descriptor{
			Index:     i,
			Type:      t,
			Mip:       mip,
			Source:    source,
			Secondary: secondary,
			Dest:      TextureRef{Name: dest, Mip: mip},
		})
	}

	add(PassThreshold, TextureRef{Name: stage.TextureSceneHDR}, nil, TextureChain)
	for k := range uint32(n) {
		// Level k is blurred down from level k-1; level 0 blurs the threshold output in place.
		src := TextureRef{Name: TextureChain}
		if k > 0 {
			src.Mip = k - 1
		}
		add(PassBlurX, src, nil, TextureScratch)
		add(PassBlurY, TextureRef{Name: TextureScratch, Mip: k}, nil, TextureChain)
	}
	for j := range n - 1 {
		m := uint32(n - 2 - j)
		low := TextureRef{Name: TextureUp, Mip: m + 1}
		if j == 0 {
			low = TextureRef{Name: TextureChain, Mip: uint32(n - 1)}
		}
		add(PassUpsample, low, &TextureRef{Name: TextureChain, Mip: m}, TextureUp)
	}
	return descs
}

// PresentDescriptor returns the terminal pass that adds the bloom to the scene into the output texture.
//
// Parameters:
//   - n: the number of blur pairs, at least 1
//
// Returns:
//   - Descriptor: the present descriptor, indexed after the Generate list
func PresentDescriptor(n int) Descriptor {
	low := TextureRef{Name: TextureUp}
	if n == 1 {
		low = TextureRef{Name: TextureChain}
	}
	return Descriptor{
		Index:     Count(n),
		Type:      PassPresent,
		Source:    low,
		Secondary: &TextureRef{Name: stage.TextureSceneHDR},
		Dest:      TextureRef{Name: TextureOutput},
	}
}

// DispatchSize returns the workgroup counts that cover a destination level.
//
// Parameters:
//   - level: the size of the written mip level
//   - workgroup: the entry point's workgroup size
//
// Returns:
//   - [3]uint32: the x, y and z workgroup counts
func DispatchSize(level common.Size, workgroup [3]uint32) [3]uint32 {
	return [3]uint32{
		common.CeilDiv(max(level.Width, 1), max(workgroup[0], 1)),
		common.CeilDiv(max(level.Height, 1), max(workgroup[1], 1)),
		1,
	}
}
