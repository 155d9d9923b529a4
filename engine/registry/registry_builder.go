package registry

import "github.com/Carmen-Shannon/oxy2d/common"

// RegistryBuilderOption is a functional option applied to a registry during construction via NewRegistry.
type RegistryBuilderOption func(*registry)

// WithInitialSize sets the resolution resolution-dependent textures are first created at.
// Without it, Size is zero until the first RebuildResolutionDependent.
//
// Parameters:
//   - size: the initial output resolution
//
// Returns:
//   - RegistryBuilderOption: a function that applies the size option to a registry
func WithInitialSize(size common.Size) RegistryBuilderOption {
	return func(r *registry) {
		r.size = size
	}
}
