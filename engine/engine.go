// Package engine runs the frame loop: the window pumps events on the main thread, and every iteration
// ticks the profiler and records one frame between Renderer.BeginBatch and Renderer.EndBatch with the
// application's frame callback in between. A fixed-rate tick goroutine is available for game logic.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy2d/common"
	"github.com/Carmen-Shannon/oxy2d/engine/batch"
	"github.com/Carmen-Shannon/oxy2d/engine/config"
	"github.com/Carmen-Shannon/oxy2d/engine/gpu"
	"github.com/Carmen-Shannon/oxy2d/engine/profiler"
	"github.com/Carmen-Shannon/oxy2d/engine/registry"
	"github.com/Carmen-Shannon/oxy2d/engine/renderer"
	"github.com/Carmen-Shannon/oxy2d/engine/window"
)

var (
	// errFrameCallback wraps errors returned by the application's frame callback.
	errFrameCallback = errors.New("engine: frame callback")
	// errFramePanic wraps a recovered panic. The renderer may be left mid-frame, so it stops the loop.
	errFramePanic = errors.New("engine: frame panicked")
)

// FrameCallback records the application's draws for one frame. It runs between BeginBatch and EndBatch.
type FrameCallback func(r renderer.Renderer, deltaTime float32) error

// SetLogger routes the log output of every engine package, including the renderer, registry, bloom
// graph and profiler, to l. Pass nil to silence the engine again.
func SetLogger(l *slog.Logger) {
	common.SetLogger(l)
}

// engine implements the Engine interface.
type engine struct {
	cfg config.Config

	tickRateChannel chan time.Duration
	running         bool
	wg              sync.WaitGroup
	quitChannel     chan struct{}
	quitOnce        sync.Once

	window          window.Window
	backend         gpu.Backend
	renderer        renderer.Renderer
	rendererOptions []renderer.RendererBuilderOption
	backendOptions  []gpu.BackendBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	frameCallback    FrameCallback
	renderFrameLimit time.Duration

	lastFrame time.Time
	err       error
}

// Engine is the main entry point for the engine.
// It owns the window, the GPU backend and the renderer and drives the frame loop.
type Engine interface {
	Window() window.Window
	Renderer() renderer.Renderer
	Profiler() *profiler.Profiler

	EnableProfiler()
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, on the tick goroutine.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function that records each frame, on the main thread.
	//
	// Parameters:
	//   - callback: the frame callback; an error stops the loop
	SetFrameCallback(callback FrameCallback)

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	SetRenderFrameLimit(fps float64)

	// Run starts the frame loop on the calling goroutine and blocks until the window closes, Quit is
	// called, or a fatal error occurs.
	//
	// Returns:
	//   - error: the fatal error that stopped the loop, or nil
	Run() error

	// Quit stops the loop after the current frame. Safe to call multiple times.
	Quit()
}

// NewEngine creates the window, the GPU backend and the renderer, and initializes the renderer. A window
// or renderer supplied through options is used instead of creating one.
//
// Parameters:
//   - cfg: the render configuration
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the engine, ready to Run
//   - error: error if the configuration is invalid or a component could not be created
func NewEngine(cfg config.Config, options ...EngineBuilderOption) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &engine{
		cfg:             cfg,
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, err := window.NewWindow(
			window.WithTitle("oxy2d"),
			window.WithSize(int(cfg.Resolution.Width), int(cfg.Resolution.Height)),
		)
		if err != nil {
			return nil, err
		}
		e.window = w
	}
	if e.renderer == nil {
		if err := e.createRenderer(); err != nil {
			_ = e.window.Close()
			return nil, err
		}
	}

	e.profiler = profiler.NewProfiler(
		profiler.WithCounters(e.renderer.Counters()),
		profiler.WithTimestamps(e.renderer.Timestamps()),
	)
	e.window.SetResizeCallback(func(width, height int) {
		e.renderer.Resize(width, height)
	})
	e.window.SetUpdateCallback(e.frame)
	return e, nil
}

// createRenderer opens a WebGPU device on the window surface and initializes a renderer at the
// framebuffer size.
func (e *engine) createRenderer() error {
	mode := gpu.PresentModeUncapped
	if e.cfg.Resolution.VSync {
		mode = gpu.PresentModeVSync
	}
	opts := append([]gpu.BackendBuilderOption{
		gpu.WithPresentMode(mode),
		gpu.WithTimestampQueries(e.cfg.Features.Timestamps),
	}, e.backendOptions...)
	backend, err := gpu.NewWGPUBackend(e.window.SurfaceDescriptor(), opts...)
	if err != nil {
		return err
	}

	cfg := e.cfg
	if size := e.window.Size(); !size.Empty() {
		cfg.Resolution.Width, cfg.Resolution.Height = size.Width, size.Height
	}
	r := renderer.NewRenderer(backend, cfg, e.rendererOptions...)
	if err := r.Init(); err != nil {
		r.Release()
		backend.Release()
		return err
	}
	e.backend, e.renderer = backend, r
	return nil
}

func (e *engine) Window() window.Window        { return e.window }
func (e *engine) Renderer() renderer.Renderer  { return e.renderer }
func (e *engine) Profiler() *profiler.Profiler { return e.profiler }
func (e *engine) EnableProfiler()              { e.profilingEnabled = true }
func (e *engine) DisableProfiler()             { e.profilingEnabled = false }

func (e *engine) Run() error {
	e.running = true
	e.lastFrame = time.Now()
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()

	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.release()
	return e.err
}

// release frees everything the engine created itself.
func (e *engine) release() {
	if e.backend == nil {
		return
	}
	e.renderer.Release()
	e.backend.Release()
	if err := e.window.Close(); err != nil {
		common.Logger().Warn("window close failed", "error", err)
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel and stops the window loop. Uses sync.Once so the channel is only
// closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
		e.window.RequestClose()
	})
}

// frame runs once per window loop iteration on the main thread.
func (e *engine) frame() {
	select {
	case <-e.quitChannel:
		return
	default:
	}

	now := time.Now()
	dt := float32(now.Sub(e.lastFrame).Seconds())
	e.lastFrame = now

	if e.profilingEnabled {
		e.profiler.Tick()
	}
	if err := e.recordFrame(dt); err != nil {
		if !fatal(err) {
			common.Logger().Warn("frame failed", "error", err)
		} else {
			common.Logger().Error("frame loop stopped", "error", err)
			e.err = err
			e.signalQuit()
			return
		}
	}

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// recordFrame brackets the frame callback with BeginBatch and EndBatch. Panics are returned as errors:
// registry wiring panics as the *registry.NotFoundError itself, anything else wrapped in errFramePanic.
func (e *engine) recordFrame(dt float32) (err error) {
	defer func() {
		if p := recover(); p != nil {
			var nf *registry.NotFoundError
			if perr, ok := p.(error); ok && errors.As(perr, &nf) {
				err = perr
				return
			}
			err = fmt.Errorf("%w: %v", errFramePanic, p)
		}
	}()

	r := e.renderer
	if err := r.BeginBatch(); err != nil {
		return err
	}
	if e.frameCallback != nil {
		if err := e.frameCallback(r, dt); err != nil {
			// The batch is ended anyway so the renderer returns to Idle.
			return errors.Join(fmt.Errorf("%w: %w", errFrameCallback, err), r.EndBatch())
		}
	}
	return r.EndBatch()
}

// fatal reports whether err means every following frame would fail the same way.
func fatal(err error) bool {
	return errors.Is(err, batch.ErrDataShape) ||
		errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, renderer.ErrState) ||
		errors.Is(err, errFrameCallback) ||
		errors.Is(err, errFramePanic)
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback FrameCallback) {
	e.frameCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameLimit(fps)
}

func frameLimit(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
