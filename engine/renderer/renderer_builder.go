package renderer

import (
	"time"

	"github.com/Carmen-Shannon/oxy2d/engine/bloom"
	"github.com/Carmen-Shannon/oxy2d/engine/stage"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithStage replaces the default stage of the same name. The stage list keeps its fixed order, so the
// replacement runs where the stage it replaces would have.
//
// Parameters:
//   - s: the replacement stage
//
// Returns:
//   - RendererBuilderOption: a function that applies the stage option to a renderer
func WithStage(s stage.Stage) RendererBuilderOption {
	return func(r *renderer) {
		r.overrides[s.Name()] = s
	}
}

// WithWorkers sets how many goroutines create stage pipelines concurrently during Init.
// When not specified, one worker per stage is used.
//
// Parameters:
//   - n: the worker count, at least 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker option to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = max(n, 1)
	}
}

// WithDrawOptions forwards options to the draw stage, e.g. stage.WithSpriteAtlas.
//
// Parameters:
//   - options: the draw stage options
//
// Returns:
//   - RendererBuilderOption: a function that applies the draw options to a renderer
func WithDrawOptions(options ...stage.DrawStageBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.drawOptions = append(r.drawOptions, options...)
	}
}

// WithBloomOptions forwards options to the bloom graph.
func WithBloomOptions(options ...bloom.GraphBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.bloomOptions = append(r.bloomOptions, options...)
	}
}

// WithClock replaces the clock the per-frame time parameter is measured with.
func WithClock(now func() time.Time) RendererBuilderOption {
	return func(r *renderer) {
		r.now = now
	}
}
