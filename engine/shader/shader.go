// Package shader loads the engine's embedded WGSL modules. Loading expands shared include chunks and
// reflects the module: entry points, compute workgroup sizes, bind group layouts and per-instance vertex
// layouts are read from the source, so Go code never restates what the shader already declares.
package shader

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/*.wgsl assets/include/*.wgsl
var assets embed.FS

// Kind is the pipeline kind a module is written for.
type Kind int

const (
	// KindRender modules have vertex and fragment entry points.
	KindRender Kind = iota
	// KindCompute modules have one or more compute entry points.
	KindCompute
)

// Shader is a pre-processed, reflected WGSL module.
type Shader interface {
	// Name returns the asset name the module was loaded from.
	Name() string

	// Source returns the pre-processed WGSL.
	Source() string

	// Kind reports whether the module is a render or compute module.
	Kind() Kind

	// VertexEntry returns the first @vertex entry point, or "".
	VertexEntry() string

	// FragmentEntries returns every @fragment entry point in source order.
	FragmentEntries() []string

	// ComputeEntries returns every @compute entry point in source order.
	ComputeEntries() []string

	// WorkgroupSize returns the @workgroup_size of a compute entry point. Omitted dimensions are 1.
	//
	// Parameters:
	//   - entry: the compute entry point
	//
	// Returns:
	//   - [3]uint32: the workgroup size
	//   - bool: false when entry is not a compute entry point
	WorkgroupSize(entry string) ([3]uint32, bool)

	// BindGroupLayout returns the layout descriptor of one bind group, labelled "<name>.<group>".
	//
	// Parameters:
	//   - group: the @group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor
	//   - bool: false when the module declares nothing in that group
	BindGroupLayout(group int) (wgpu.BindGroupLayoutDescriptor, bool)

	// Groups returns the declared group indices in ascending order.
	Groups() []int

	// BindingName returns the variable name declared at group/binding, or "".
	BindingName(group, binding int) string

	// InstanceLayout builds a per-instance vertex buffer layout from a struct of @location fields.
	//
	// Parameters:
	//   - structName: the WGSL struct name
	//
	// Returns:
	//   - wgpu.VertexBufferLayout: the layout, with StepMode instance
	//   - bool: false when the struct is missing or has a non-vertex field
	InstanceLayout(structName string) (wgpu.VertexBufferLayout, bool)
}

// shader is the implementation of the Shader interface.
type shader struct {
	name   string
	source string
	p      parsed
}

var _ Shader = &shader{}

// Load reads, pre-processes and reflects the embedded module assets/<name>.wgsl.
//
// Parameters:
//   - name: the asset name without extension, e.g. "bloom_threshold"
//
// Returns:
//   - Shader: the loaded module
//   - error: a read or include error
func Load(name string) (Shader, error) {
	data, err := assets.ReadFile("assets/" + name + ".wgsl")
	if err != nil {
		return nil, fmt.Errorf("shader: load %q: %w", name, err)
	}
	return Parse(name, string(data))
}

// MustLoad is Load for modules whose absence is a build defect.
func MustLoad(name string) Shader {
	s, err := Load(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse pre-processes and reflects source. Includes resolve against the embedded include chunks.
//
// Parameters:
//   - name: the module name used in labels and errors
//   - source: raw WGSL
//
// Returns:
//   - Shader: the parsed module
//   - error: an include error, or a module with no entry point
func Parse(name, source string) (Shader, error) {
	chunks, err := fs.Sub(assets, "assets/include")
	if err != nil {
		return nil, err
	}
	expanded, err := preprocess(name, source, chunks)
	if err != nil {
		return nil, err
	}
	p := parse(expanded)
	if len(p.compute) == 0 && (len(p.vertex) == 0 || len(p.fragment) == 0) {
		return nil, fmt.Errorf("shader: %q has neither compute entry points nor a vertex/fragment pair", name)
	}
	return &shader{name: name, source: expanded, p: p}, nil
}

func (s *shader) Name() string   { return s.name }
func (s *shader) Source() string { return s.source }

func (s *shader) Kind() Kind {
	if len(s.p.compute) > 0 {
		return KindCompute
	}
	return KindRender
}

func (s *shader) VertexEntry() string {
	if len(s.p.vertex) == 0 {
		return ""
	}
	return s.p.vertex[0]
}

func (s *shader) FragmentEntries() []string { return slices.Clone(s.p.fragment) }
func (s *shader) ComputeEntries() []string  { return slices.Clone(s.p.compute) }

func (s *shader) WorkgroupSize(entry string) ([3]uint32, bool) {
	size, ok := s.p.workgroup[entry]
	return size, ok
}

func (s *shader) BindGroupLayout(group int) (wgpu.BindGroupLayoutDescriptor, bool) {
	desc, ok := s.p.layouts[group]
	if !ok {
		return wgpu.BindGroupLayoutDescriptor{}, false
	}
	desc.Label = fmt.Sprintf("%s.%d", s.name, group)
	desc.Entries = slices.Clone(desc.Entries)
	return desc, true
}

func (s *shader) Groups() []int {
	return slices.Sorted(maps.Keys(s.p.layouts))
}

func (s *shader) BindingName(group, binding int) string {
	return s.p.names[group][binding]
}

func (s *shader) InstanceLayout(structName string) (wgpu.VertexBufferLayout, bool) {
	for _, st := range s.p.structs {
		if st.name == structName {
			return instanceLayout(st)
		}
	}
	return wgpu.VertexBufferLayout{}, false
}
