package common

import (
	"golang.org/x/exp/constraints"
)

type numeric interface {
	constraints.Integer | constraints.Float
}

// Rect is an axis-aligned rectangle described by its top-left corner and its size.
// It is comparable, so it can take part in batch state keys.
type Rect[T numeric] struct {
	X, Y          T
	Width, Height T
}

// RectFromPoints builds the rectangle spanning two corners, in any order.
func RectFromPoints[T numeric](x0, y0, x1, y1 T) Rect[T] {
	return Rect[T]{
		X:      min(x0, x1),
		Y:      min(y0, y1),
		Width:  max(x0, x1) - min(x0, x1),
		Height: max(y0, y1) - min(y0, y1),
	}
}

// MaxX returns the right edge.
func (r Rect[T]) MaxX() T {
	return r.X + r.Width
}

// MaxY returns the bottom edge.
func (r Rect[T]) MaxY() T {
	return r.Y + r.Height
}

// Empty reports whether the rectangle covers no area.
func (r Rect[T]) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersect returns the overlap of r and other. The result is empty when they do not overlap.
func (r Rect[T]) Intersect(other Rect[T]) Rect[T] {
	x0, y0 := max(r.X, other.X), max(r.Y, other.Y)
	x1, y1 := min(r.MaxX(), other.MaxX()), min(r.MaxY(), other.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return Rect[T]{X: x0, Y: y0}
	}
	return Rect[T]{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// XYWH unpacks the rectangle.
func (r Rect[T]) XYWH() (T, T, T, T) {
	return r.X, r.Y, r.Width, r.Height
}
