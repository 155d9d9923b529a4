package registry

import (
	"errors"
	"fmt"
)

// Category is a resource kind. Names are unique within a category only.
type Category int

const (
	CategoryBuffer Category = iota
	CategoryTexture
	CategorySampler
	CategoryShader
	CategoryBindGroup
)

func (c Category) String() string {
	switch c {
	case CategoryBuffer:
		return "buffer"
	case CategoryTexture:
		return "texture"
	case CategorySampler:
		return "sampler"
	case CategoryShader:
		return "shader"
	case CategoryBindGroup:
		return "bind group"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

var (
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("registry: resource not found")

	// ErrDuplicate is returned when a name is registered twice in the same category.
	ErrDuplicate = errors.New("registry: duplicate resource name")
)

// NotFoundError reports a lookup of an unregistered name. It always indicates a wiring bug: the
// fatal getters panic with it, the Lookup* forms return it.
type NotFoundError struct {
	Category Category
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: no %s named %q is registered", e.Category, e.Name)
}

// Is makes errors.Is(err, ErrNotFound) hold for every NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// lookup is the result-typed lookup every category shares.
func lookup[T any](m map[string]T, category Category, name string) (T, error) {
	v, ok := m[name]
	if !ok {
		var zero T
		return zero, &NotFoundError{Category: category, Name: name}
	}
	return v, nil
}

// must converts a lookup result into the fatal boundary form.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
