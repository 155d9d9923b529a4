package bloom

// GraphBuilderOption is a functional option for configuring the bloom graph.
type GraphBuilderOption func(*graph)

// WithCacheSize bounds the bind group cache. The default holds one bind group per descriptor; a smaller
// cache recreates the least recently used groups every frame.
//
// Parameters:
//   - size: the maximum number of cached bind groups
//
// Returns:
//   - GraphBuilderOption: option function to apply
func WithCacheSize(size int) GraphBuilderOption {
	return func(g *graph) {
		g.cacheSize = max(size, 1)
	}
}
