package bind_group_provider

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBuffer binds a registered buffer.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - name: the registry name of the buffer
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, name string) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = name
	}
}

// WithTextureView binds the view over every mip level of a registered texture.
//
// Parameters:
//   - binding: the binding index for this texture view
//   - name: the registry name of the texture
//
// Returns:
//   - BindGroupProviderOption: a function that sets the texture view for the specified binding
func WithTextureView(binding int, name string) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.textureViews[binding] = TextureBinding{Name: name, Mip: WholeTexture}
	}
}

// WithTextureMip binds a single mip level of a registered texture. The texture must have been registered
// with per-mip views.
//
// Parameters:
//   - binding: the binding index for this texture view
//   - name: the registry name of the texture
//   - mip: the mip level
//
// Returns:
//   - BindGroupProviderOption: a function that sets the texture view for the specified binding
func WithTextureMip(binding int, name string, mip uint32) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.textureViews[binding] = TextureBinding{Name: name, Mip: int(mip)}
	}
}

// WithSampler binds a registered sampler.
//
// Parameters:
//   - binding: the binding index for this sampler
//   - name: the registry name of the sampler
//
// Returns:
//   - BindGroupProviderOption: a function that sets the sampler for the specified binding
func WithSampler(binding int, name string) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.samplers[binding] = name
	}
}
