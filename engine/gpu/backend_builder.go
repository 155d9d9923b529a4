package gpu

// BackendBuilderOption is a functional option for configuring the wgpu backend.
// Use the With* functions to create options.
type BackendBuilderOption func(b *wgpuBackendImpl)

// WithPresentMode sets the initial surface present mode.
//
// Parameters:
//   - mode: PresentModeVSync or PresentModeUncapped
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithPresentMode(mode PresentMode) BackendBuilderOption {
	return func(b *wgpuBackendImpl) {
		b.presentMode = mode
	}
}

// WithForceFallbackAdapter requests the software fallback adapter.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) BackendBuilderOption {
	return func(b *wgpuBackendImpl) {
		b.forceFallback = force
	}
}

// WithTimestampQueries controls whether the timestamp-query feature is requested.
// When the adapter lacks the feature the backend silently runs without it.
//
// Parameters:
//   - enabled: true to request timestamp queries
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithTimestampQueries(enabled bool) BackendBuilderOption {
	return func(b *wgpuBackendImpl) {
		b.wantTimestamp = enabled
	}
}
