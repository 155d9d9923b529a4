package shader

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	structRe   = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	locationRe = regexp.MustCompile(`@location\((\d+)\)`)
	builtinRe  = regexp.MustCompile(`@builtin\(\w+\)`)
	// fieldRe takes the type greedily so parameterised types such as array<T, N> stay whole.
	fieldRe = regexp.MustCompile(`(?:@\w+\([^)]*\)\s*)*(\w+)\s*:\s*(.+)`)

	vertexRe   = regexp.MustCompile(`@vertex\s+fn\s+(\w+)`)
	fragmentRe = regexp.MustCompile(`@fragment\s+fn\s+(\w+)`)
	// computeRe captures the workgroup dimensions and the entry name of every compute entry point.
	computeRe = regexp.MustCompile(`@compute\s+@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)\s*fn\s+(\w+)`)

	// bindingRe matches `@group(G) @binding(B) var<space> name: type;` and handle types without a space.
	bindingRe = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

type field struct {
	name     string
	typeName string
	location int
	builtin  bool
}

type structDecl struct {
	name   string
	fields []field
}

// parsed is everything reflected out of one pre-processed module.
type parsed struct {
	structs   []structDecl
	vertex    []string
	fragment  []string
	compute   []string
	workgroup map[string][3]uint32
	layouts   map[int]wgpu.BindGroupLayoutDescriptor
	names     map[int]map[int]string
}

func parse(source string) parsed {
	clean := stripComments(source)
	p := parsed{
		structs:   parseStructs(clean),
		vertex:    captureAll(vertexRe, clean),
		fragment:  captureAll(fragmentRe, clean),
		workgroup: make(map[string][3]uint32),
	}
	for _, m := range computeRe.FindAllStringSubmatch(clean, -1) {
		size := [3]uint32{1, 1, 1}
		for i := range 3 {
			if v, err := strconv.ParseUint(m[i+1], 10, 32); err == nil {
				size[i] = uint32(v)
			}
		}
		p.compute = append(p.compute, m[4])
		p.workgroup[m[4]] = size
	}

	visibility := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	if len(p.compute) > 0 {
		visibility = wgpu.ShaderStageCompute
	}
	p.layouts, p.names = parseBindings(clean, p.structs, visibility)
	return p
}

func captureAll(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func parseStructs(source string) []structDecl {
	matches := structRe.FindAllStringSubmatch(source, -1)
	out := make([]structDecl, 0, len(matches))
	for _, m := range matches {
		out = append(out, structDecl{name: m[1], fields: parseFields(m[2])})
	}
	return out
}

func parseFields(body string) []field {
	var out []field
	for _, part := range splitTopLevel(body) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fm := fieldRe.FindStringSubmatch(part)
		if fm == nil {
			continue
		}
		f := field{
			name:     fm[1],
			typeName: strings.TrimSpace(fm[2]),
			location: -1,
			builtin:  builtinRe.MatchString(part),
		}
		if lm := locationRe.FindStringSubmatch(part); lm != nil {
			f.location, _ = strconv.Atoi(lm[1])
		}
		out = append(out, f)
	}
	return out
}

// parseBindings builds one layout descriptor per bind group, entries sorted by binding. Buffer entries get
// MinBindingSize from the bound type when it can be resolved.
func parseBindings(source string, structs []structDecl, visibility wgpu.ShaderStage) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	sizes := structLayouts(structs)
	entries := make(map[int][]wgpu.BindGroupLayoutEntry)
	names := make(map[int]map[int]string)

	for _, m := range bindingRe.FindAllStringSubmatch(source, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		space, name, typeName := strings.TrimSpace(m[3]), m[4], strings.TrimSpace(m[5])

		entry := classify(uint32(binding), visibility, space, typeName)
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if l, ok := typeLayout(typeName, sizes); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		}
		entries[group] = append(entries[group], entry)
		if names[group] == nil {
			names[group] = make(map[int]string)
		}
		names[group][binding] = name
	}

	layouts := make(map[int]wgpu.BindGroupLayoutDescriptor, len(entries))
	for g, e := range entries {
		slices.SortFunc(e, func(a, b wgpu.BindGroupLayoutEntry) int { return cmp.Compare(a.Binding, b.Binding) })
		layouts[g] = wgpu.BindGroupLayoutDescriptor{Entries: e}
	}
	return layouts, names
}

// instanceLayout turns a struct of @location fields into a per-instance vertex buffer layout.
func instanceLayout(s structDecl) (wgpu.VertexBufferLayout, bool) {
	attrs := make([]wgpu.VertexAttribute, 0, len(s.fields))
	var offset uint64
	for _, f := range s.fields {
		if f.builtin || f.location < 0 {
			return wgpu.VertexBufferLayout{}, false
		}
		info, ok := vertexFormats[f.typeName]
		if !ok {
			return wgpu.VertexBufferLayout{}, false
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         info.format,
			Offset:         offset,
			ShaderLocation: uint32(f.location),
		})
		offset += info.size
	}
	if len(attrs) == 0 {
		return wgpu.VertexBufferLayout{}, false
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes:  attrs,
	}, true
}

// splitTopLevel splits at commas outside angle brackets, so array<T, N> stays one field.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// stripComments removes line comments and nested block comments.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			case depth == 0 && source[i] == '/' && source[i+1] == '/':
				for i < len(source) && source[i] != '\n' {
					i++
				}
				if i < len(source) {
					sb.WriteByte('\n')
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}
