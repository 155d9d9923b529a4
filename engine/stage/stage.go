// Package stage holds the render stages the renderer runs once per frame, in a fixed order: sprite and
// glyph drawing into the HDR scene, 2D lighting, color correction into LDR, LDR screen effects, the UI
// overlay and the final present to the surface. Bloom lives in its own package and plugs into the same
// Stage interface.
package stage

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/profiler"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	"github.com/cogentcore/webgpu/wgpu"
)

// Stage names, which are also their timestamp slot names.
const (
	NameDraw            = "draw"
	NameLighting        = "lighting"
	NameBloom           = "bloom"
	NameColorCorrection = "colorcorrection"
	NamePostProcess     = "postprocess"
	NameUI              = "ui"
	NamePresent         = "present"
)

// Order is the only valid stage order.
var Order = []string{NameDraw, NameLighting, NameBloom, NameColorCorrection, NamePostProcess, NameUI, NamePresent}

// Context is what a stage needs to create its resources. The renderer builds one and shares it with
// every stage.
type Context struct {
	Device   gpu.Device
	Registry registry.Registry
	// Config is the configuration the renderer was constructed with. Per-frame values come from Frame.Params.
	Config config.Config
	// SurfaceFormat is the swapchain format the present stage renders into.
	SurfaceFormat wgpu.TextureFormat
}

// Params are the runtime parameters of one frame. The renderer snapshots them when the frame is ended,
// so setters called while recording take effect at the next UsePipeline.
type Params struct {
	Features    config.Features
	Draw        config.Draw
	Bloom       config.Bloom
	Screen      config.Screen
	PostProcess config.PostProcess
	Lighting    config.Lighting

	// CameraX and CameraY offset the world camera in pixels.
	CameraX, CameraY float32
	// Time is the number of seconds since the renderer started.
	Time float32
}

// NewParams takes the runtime parameters from a configuration.
//
// Parameters:
//   - c: the configuration
//
// Returns:
//   - Params: the parameters, with a zero camera offset and time
func NewParams(c config.Config) Params {
	return Params{
		Features:    c.Features,
		Draw:        c.Draw,
		Bloom:       c.Bloom,
		Screen:      c.Screen,
		PostProcess: c.PostProcess,
		Lighting:    c.Lighting,
	}
}

// Frame is the per-frame state handed to every stage's UsePipeline.
type Frame struct {
	// Encoder records every pass of the frame.
	Encoder gpu.CommandEncoder
	// Surface is the acquired swapchain view.
	Surface gpu.TextureView
	// Size is the output resolution.
	Size common.Size
	// Params are the runtime parameters snapshotted for this frame.
	Params Params

	// Timestamps and Counters may be nil.
	Timestamps profiler.Timestamps
	Counters   *profiler.Counters

	// LDR names the texture holding the latest LDR image. Color correction fills TextureLDR; the post
	// process stage replaces it with TexturePost when it runs.
	LDR string
}

// PassTimestamps returns the timestamp writes for the named stage, or nil when timestamps are off.
func (f *Frame) PassTimestamps(name string) *gpu.PassTimestamps {
	if f.Timestamps == nil {
		return nil
	}
	return f.Timestamps.Pass(name)
}

func (f *Frame) countDraws(category string, calls, instances int) {
	if f.Counters != nil {
		f.Counters.CountDraws(category, calls, instances)
	}
}

func (f *Frame) countDispatches(n int) {
	if f.Counters != nil {
		f.Counters.CountDispatches(n)
	}
}

// CountDispatches records compute dispatches issued by a stage outside this package.
func (f *Frame) CountDispatches(n int) {
	f.countDispatches(n)
}

// Stage is one step of the frame. Creation runs in two phases: CreateTargets runs for every stage in
// order, then CreatePipeline runs for every stage concurrently, so a stage may bind another stage's
// targets but must not create anything another stage reads.
type Stage interface {
	// Name returns the stage name, one of the Name* constants.
	Name() string

	// CreateTargets registers the resolution-dependent textures the stage renders into.
	//
	// Parameters:
	//   - ctx: the shared stage context
	//
	// Returns:
	//   - error: error if a texture could not be created
	CreateTargets(ctx *Context) error

	// CreatePipeline compiles the stage's shaders and creates its pipelines and bind groups.
	//
	// Parameters:
	//   - ctx: the shared stage context
	//
	// Returns:
	//   - error: error if any GPU object could not be created
	CreatePipeline(ctx *Context) error

	// OnResize is called after the registry rebuilt every resolution-dependent resource.
	OnResize(ctx *Context) error

	// Clear drops the previous frame's CPU-side data.
	Clear()

	// UsePipeline records the stage's passes.
	//
	// Parameters:
	//   - frame: the frame being recorded
	//
	// Returns:
	//   - error: error if the frame cannot be recorded; the renderer drops the frame
	UsePipeline(frame *Frame) error

	// Release frees every GPU object the stage created outside the registry.
	Release()
}

// ValidateOrder checks that stages has exactly the names of Order, in that order.
//
// Parameters:
//   - stages: the stage list
//
// Returns:
//   - error: error naming the first mismatch
func ValidateOrder(stages []Stage) error {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	if slices.Equal(names, Order) {
		return nil
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return fmt.Errorf("stage: %q appears twice", n)
		}
		seen[n] = true
	}
	return fmt.Errorf("stage: order %v, want %v", names, Order)
}

// base carries the name and the context captured at CreatePipeline, plus no-op defaults.
type base struct {
	name string
	ctx  *Context
}

func (b *base) Name() string                 { return b.name }
func (b *base) CreateTargets(*Context) error { return nil }
func (b *base) OnResize(*Context) error      { return nil }
func (b *base) Clear()                       {}
