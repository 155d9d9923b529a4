package shader

import (
	"fmt"
	"io/fs"
	"strings"
)

// includePrefix marks a line that is replaced by a shared WGSL chunk, e.g. `//@oxy:include camera`.
const includePrefix = "//@oxy:include"

// preprocess expands include lines from chunks, which maps a chunk name to its file. Each chunk is inserted
// at most once per module; nested includes are expanded where they appear.
func preprocess(name, source string, chunks fs.FS) (string, error) {
	var out strings.Builder
	seen := map[string]bool{}
	if err := expand(&out, name, source, chunks, seen, nil); err != nil {
		return "", err
	}
	return out.String(), nil
}

func expand(out *strings.Builder, name, source string, chunks fs.FS, seen map[string]bool, stack []string) error {
	for i, line := range strings.Split(source, "\n") {
		arg, ok := strings.CutPrefix(strings.TrimSpace(line), includePrefix)
		if !ok {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		chunk := strings.TrimSpace(arg)
		if chunk == "" || strings.ContainsAny(chunk, " \t") {
			return fmt.Errorf("shader: %s:%d: malformed include %q", name, i+1, strings.TrimSpace(line))
		}
		for _, s := range stack {
			if s == chunk {
				return fmt.Errorf("shader: %s:%d: include cycle %s -> %s", name, i+1, strings.Join(stack, " -> "), chunk)
			}
		}
		if seen[chunk] {
			continue
		}
		seen[chunk] = true

		data, err := fs.ReadFile(chunks, chunk+".wgsl")
		if err != nil {
			return fmt.Errorf("shader: %s:%d: unknown include %q: %w", name, i+1, chunk, err)
		}
		if err := expand(out, chunk, string(data), chunks, seen, append(stack, chunk)); err != nil {
			return err
		}
	}
	return nil
}
