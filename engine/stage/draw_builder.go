package stage

// DrawStageBuilderOption is a functional option for configuring the draw stage.
type DrawStageBuilderOption func(*drawStage)

// WithSpriteAtlas sets the registered texture quads and circles sample. The default is TextureWhite.
// The texture must be registered before the renderer is initialised.
//
// Parameters:
//   - name: the registry texture name
//
// Returns:
//   - DrawStageBuilderOption: option function to apply
func WithSpriteAtlas(name string) DrawStageBuilderOption {
	return func(d *drawStage) {
		d.spriteAtlas = name
	}
}

// WithFontAtlas sets the registered MSDF texture glyphs sample. The default is TextureWhite.
//
// Parameters:
//   - name: the registry texture name
//
// Returns:
//   - DrawStageBuilderOption: option function to apply
func WithFontAtlas(name string) DrawStageBuilderOption {
	return func(d *drawStage) {
		d.fontAtlas = name
	}
}

// WithMaxVariants bounds the pipeline variant cache. Only the first n buckets are created up front; the
// rest are created on first use and the least recently used variant is released.
func WithMaxVariants(n int) DrawStageBuilderOption {
	return func(d *drawStage) {
		d.maxVariants = max(n, 1)
	}
}
