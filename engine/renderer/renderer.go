// Package renderer is the frame lifecycle controller. It owns the resource registry and the static stage
// list, creates every stage's GPU objects at Init, and records, submits and presents one frame per
// BeginBatch/EndBatch pair.
package renderer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/bloom"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/profiler"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	"github.com/Carmen-Shannon/oxy2d/engine/stage"
)

// State is the position of the renderer in the frame lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrState is returned when BeginBatch or EndBatch is called out of order.
var ErrState = errors.New("renderer: invalid state")

// ResolutionState is the pending output size. Dirty is set by Resize and cleared by the next BeginBatch.
type ResolutionState struct {
	Width  uint32
	Height uint32
	Dirty  bool
}

// Renderer defines the interface for the frame lifecycle controller.
//
// Frames are recorded between BeginBatch and EndBatch. Between the two the application queues sprites,
// lights and UI through Draw, AddLight and UI; EndBatch runs the stages in their fixed order
// draw, lighting, bloom, colorcorrection, postprocess, ui, present.
type Renderer interface {
	// Init creates the render targets and pipelines of every stage. Targets are created in stage order;
	// pipelines are created concurrently on a worker pool.
	//
	// Returns:
	//   - error: every stage's pipeline error, joined
	Init() error

	// BeginBatch starts a frame. A pending resize is applied instead of opening an encoder, so that frame
	// records nothing and its EndBatch submits nothing.
	//
	// Returns:
	//   - error: ErrState outside Idle, or an error from the resize or encoder creation
	BeginBatch() error

	// EndBatch records every stage, submits and presents the frame. A resize requested while recording
	// drops the frame without submitting anything.
	//
	// Returns:
	//   - error: ErrState outside Recording, or the first stage error wrapped with the stage name
	EndBatch() error

	// Resize requests a new output size, applied at the next BeginBatch.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// GetConfigGroup returns a copy of one configuration section with the staged runtime values.
	//
	// Parameters:
	//   - section: the section name
	//
	// Returns:
	//   - any: the section value
	//   - error: config.ErrUnknownSection
	GetConfigGroup(section config.Section) (any, error)

	SetGlobalIllumination(color common.Color)
	SetScreenSettings(opts config.Screen)
	SetPostProcess(opts config.PostProcess)
	SetBloom(opts config.Bloom)
	SetFeatures(features config.Features)

	// SetCamera offsets the world camera in pixels.
	SetCamera(x, y float32)

	// AddLight queues a point light for the current frame.
	//
	// Returns:
	//   - bool: false when the light was dropped at the per-frame limit
	AddLight(light stage.Light) bool

	Draw() stage.DrawStage
	UI() stage.UIStage

	// Registry returns the resource registry. Atlases the draw stage samples must be uploaded before Init.
	Registry() registry.Registry

	Counters() *profiler.Counters

	// Timestamps returns the GPU timestamp ring, or nil when timestamps are disabled.
	Timestamps() profiler.Timestamps

	State() State
	Resolution() ResolutionState

	// Release frees the stages, the timestamp ring and the registry.
	Release()
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	device   gpu.Backend
	cfg      config.Config
	registry registry.Registry
	ctx      *stage.Context

	stages    []stage.Stage
	overrides map[string]stage.Stage
	draw      stage.DrawStage
	lighting  stage.LightingStage
	ui        stage.UIStage

	drawOptions  []stage.DrawStageBuilderOption
	bloomOptions []bloom.GraphBuilderOption
	workers      int

	state      State
	resolution ResolutionState
	params     stage.Params
	encoder    gpu.CommandEncoder
	// skipFrame marks a frame whose BeginBatch applied (or could not yet apply) a resize. It records
	// nothing and EndBatch submits nothing.
	skipFrame bool

	counters   *profiler.Counters
	timestamps profiler.Timestamps

	now   func() time.Time
	start time.Time

	initialized bool
}

var _ Renderer = &renderer{}

// NewRenderer creates a renderer over a device and its surface. The stages are constructed here and
// their GPU objects at Init.
//
// Parameters:
//   - device: the GPU device and presentable surface
//   - cfg: the render configuration
//   - options: functional options
//
// Returns:
//   - Renderer: the renderer, in StateIdle
func NewRenderer(device gpu.Backend, cfg config.Config, options ...RendererBuilderOption) Renderer {
	if device == nil {
		panic("renderer: NewRenderer requires a non-nil Device")
	}
	r := &renderer{
		mu:        &sync.Mutex{},
		device:    device,
		cfg:       cfg,
		params:    stage.NewParams(cfg),
		overrides: make(map[string]stage.Stage),
		workers:   len(stage.Order),
		counters:  profiler.NewCounters(),
		now:       time.Now,
		resolution: ResolutionState{
			Width:  cfg.Resolution.Width,
			Height: cfg.Resolution.Height,
		},
	}
	for _, opt := range options {
		opt(r)
	}

	r.registry = registry.NewRegistry(device, registry.WithInitialSize(cfg.Resolution.Size()))
	r.draw = stage.NewDrawStage(cfg.Draw, r.drawOptions...)
	r.lighting = stage.NewLightingStage(cfg.Lighting)
	r.ui = stage.NewUIStage(cfg.Draw)
	defaults := map[string]stage.Stage{
		stage.NameDraw:            r.draw,
		stage.NameLighting:        r.lighting,
		stage.NameBloom:           bloom.NewGraph(cfg.Bloom.Passes, r.bloomOptions...),
		stage.NameColorCorrection: stage.NewColorCorrectionStage(),
		stage.NamePostProcess:     stage.NewPostProcessStage(),
		stage.NameUI:              r.ui,
		stage.NamePresent:         stage.NewPresentStage(),
	}
	for _, name := range stage.Order {
		s := defaults[name]
		if o, ok := r.overrides[name]; ok {
			s = o
		}
		r.stages = append(r.stages, s)
	}
	return r
}

func (r *renderer) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}
	if err := stage.ValidateOrder(r.stages); err != nil {
		return err
	}
	size := r.registry.Size()
	if err := r.device.Configure(size); err != nil {
		return fmt.Errorf("renderer: configure surface: %w", err)
	}
	r.ctx = &stage.Context{
		Device:        r.device,
		Registry:      r.registry,
		Config:        r.cfg,
		SurfaceFormat: r.device.Format(),
	}
	if err := stage.RegisterShared(r.ctx); err != nil {
		return fmt.Errorf("renderer: shared resources: %w", err)
	}
	// Targets are registered sequentially so every stage's CreatePipeline can bind any target.
	for _, s := range r.stages {
		if err := s.CreateTargets(r.ctx); err != nil {
			return fmt.Errorf("stage %q: create targets: %w", s.Name(), err)
		}
	}
	if err := r.createPipelines(); err != nil {
		return err
	}

	if r.cfg.Features.Timestamps {
		ts, err := profiler.NewTimestamps(r.device, stage.Order)
		if err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
		if ts.Supported() {
			r.timestamps = ts
		} else {
			common.Logger().Info("timestamp queries unsupported, GPU stage timings disabled")
		}
	}

	r.start = r.now()
	r.initialized = true
	common.Logger().Info("renderer initialized", "width", size.Width, "height", size.Height, "stages", len(r.stages))
	return nil
}

// createPipelines runs every stage's CreatePipeline on the worker pool and waits for all of them.
func (r *renderer) createPipelines() error {
	pool := worker.NewDynamicWorkerPool(r.workers, 256, 1*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, len(r.stages))
	for i, s := range r.stages {
		wg.Add(1)
		idx, st := i, s
		pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				if err := st.CreatePipeline(r.ctx); err != nil {
					errs[idx] = fmt.Errorf("stage %q: create pipeline: %w", st.Name(), err)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (r *renderer) BeginBatch() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return fmt.Errorf("%w: BeginBatch before Init", ErrState)
	}
	if r.state != StateIdle {
		return fmt.Errorf("%w: BeginBatch in %s", ErrState, r.state)
	}
	r.counters.Reset()
	for _, s := range r.stages {
		s.Clear()
	}
	if r.resolution.Dirty {
		if err := r.applyResize(); err != nil {
			return err
		}
		r.skipFrame = true
		r.state = StateRecording
		return nil
	}

	encoder, err := r.device.CreateCommandEncoder("frame")
	if err != nil {
		return fmt.Errorf("renderer: create command encoder: %w", err)
	}
	r.encoder = encoder
	r.state = StateRecording
	return nil
}

// applyResize reconfigures the surface and rebuilds every resolution-dependent resource. A zero size
// (a minimised window) stays dirty, so frames are dropped until a usable size arrives.
func (r *renderer) applyResize() error {
	size := common.Size{Width: r.resolution.Width, Height: r.resolution.Height}
	if size.Empty() {
		return nil
	}
	if err := r.device.Configure(size); err != nil {
		return fmt.Errorf("renderer: configure surface: %w", err)
	}
	if err := r.registry.RebuildResolutionDependent(size); err != nil {
		return fmt.Errorf("renderer: rebuild: %w", err)
	}
	for _, s := range r.stages {
		if err := s.OnResize(r.ctx); err != nil {
			return fmt.Errorf("stage %q: resize: %w", s.Name(), err)
		}
	}
	r.resolution.Dirty = false
	return nil
}

func (r *renderer) EndBatch() error {
	r.mu.Lock()
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: EndBatch in %s", ErrState, state)
	}
	if r.skipFrame || r.resolution.Dirty {
		reason := "resolution changed while recording"
		if r.skipFrame {
			reason = "resources rebuilt for a new resolution"
		}
		r.dropFrame()
		r.mu.Unlock()
		common.Logger().Debug("frame dropped", "reason", reason)
		return nil
	}
	frame := &stage.Frame{
		Encoder:    r.encoder,
		Size:       r.registry.Size(),
		Params:     r.params,
		Counters:   r.counters,
		Timestamps: r.timestamps,
	}
	frame.Params.Time = float32(r.now().Sub(r.start).Seconds())
	r.mu.Unlock()

	err := r.record(frame)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.dropFrame()
		return err
	}
	r.state = StateSubmitted
	r.device.Present()
	if r.timestamps != nil {
		r.timestamps.Readback()
	}
	r.device.Poll()
	r.encoder = nil
	r.state = StateIdle
	return nil
}

// record runs every stage and submits the command buffer.
func (r *renderer) record(frame *stage.Frame) error {
	view, err := r.device.AcquireView()
	if err != nil {
		return fmt.Errorf("renderer: acquire surface: %w", err)
	}
	frame.Surface = view

	for _, s := range r.stages {
		if err := s.UsePipeline(frame); err != nil {
			return fmt.Errorf("stage %q: %w", s.Name(), err)
		}
	}
	if frame.Timestamps != nil {
		if _, err := frame.Timestamps.Resolve(frame.Encoder); err != nil {
			return fmt.Errorf("renderer: resolve timestamps: %w", err)
		}
	}
	buf, err := frame.Encoder.Finish()
	if err != nil {
		return fmt.Errorf("renderer: finish: %w", err)
	}
	r.device.Submit(buf)
	buf.Release()
	return nil
}

// dropFrame releases the encoder without submitting and returns to Idle.
func (r *renderer) dropFrame() {
	if r.encoder != nil {
		r.encoder.Release()
		r.encoder = nil
	}
	r.skipFrame = false
	r.counters.DropFrame()
	r.state = StateIdle
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, h := uint32(max(width, 0)), uint32(max(height, 0))
	if w == r.resolution.Width && h == r.resolution.Height && !r.resolution.Dirty {
		return
	}
	r.resolution = ResolutionState{Width: w, Height: h, Dirty: true}
}

func (r *renderer) GetConfigGroup(section config.Section) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cfg
	c.Features = r.params.Features
	c.Draw = r.params.Draw
	c.Bloom = r.params.Bloom
	c.Screen = r.params.Screen
	c.PostProcess = r.params.PostProcess
	c.Lighting = r.params.Lighting
	c.Resolution.Width, c.Resolution.Height = r.resolution.Width, r.resolution.Height
	return c.Section(section)
}

func (r *renderer) SetGlobalIllumination(color common.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params.Lighting.Ambient = color
}

func (r *renderer) SetScreenSettings(opts config.Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params.Screen = opts
}

func (r *renderer) SetPostProcess(opts config.PostProcess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params.PostProcess = opts
}

// SetBloom stages new bloom parameters. The pass count is fixed when the renderer is created and is
// kept.
func (r *renderer) SetBloom(opts config.Bloom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opts.Passes = r.params.Bloom.Passes
	r.params.Bloom = opts
}

// SetFeatures stages new feature toggles. Timestamps can only be chosen at construction.
func (r *renderer) SetFeatures(features config.Features) {
	r.mu.Lock()
	defer r.mu.Unlock()
	features.Timestamps = r.params.Features.Timestamps
	r.params.Features = features
}

func (r *renderer) SetCamera(x, y float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params.CameraX, r.params.CameraY = x, y
}

func (r *renderer) AddLight(light stage.Light) bool {
	return r.lighting.AddLight(light)
}

func (r *renderer) Draw() stage.DrawStage           { return r.draw }
func (r *renderer) UI() stage.UIStage               { return r.ui }
func (r *renderer) Registry() registry.Registry     { return r.registry }
func (r *renderer) Counters() *profiler.Counters    { return r.counters }
func (r *renderer) Timestamps() profiler.Timestamps { return r.timestamps }

func (r *renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *renderer) Resolution() ResolutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolution
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder != nil {
		r.encoder.Release()
		r.encoder = nil
	}
	for _, s := range r.stages {
		s.Release()
	}
	if r.timestamps != nil {
		r.timestamps.Release()
		r.timestamps = nil
	}
	r.registry.Release()
	r.initialized = false
	r.state = StateIdle
}
