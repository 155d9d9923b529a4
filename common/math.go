package common

import (
	"unsafe"
)

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// DrawOrigin selects which screen corner is world (0, 0).
type DrawOrigin string

const (
	// OriginTopLeft puts (0, 0) at the top-left with Y growing downwards.
	OriginTopLeft DrawOrigin = "top-left"
	// OriginBottomLeft puts (0, 0) at the bottom-left with Y growing upwards.
	OriginBottomLeft DrawOrigin = "bottom-left"
)

// Ortho builds the 2D view-projection matrix that maps pixel coordinates of a surface of the given
// size to clip space, translated by the camera offset. Depth is mapped from [0, 1] so the opaque
// pass can use the same value for depth testing as the transparent sort uses for ordering.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - size: the surface size in pixels
//   - origin: the draw origin
//   - camX, camY: the camera offset in pixels
func Ortho(out []float32, size Size, origin DrawOrigin, camX, camY float32) {
	w := float32(max(size.Width, 1))
	h := float32(max(size.Height, 1))

	Identity(out)
	out[0] = 2 / w
	out[12] = -1 - camX*2/w
	switch origin {
	case OriginBottomLeft:
		out[5] = 2 / h
		out[13] = -1 - camY*2/h
	default:
		out[5] = -2 / h
		out[13] = 1 + camY*2/h
	}
	out[10] = 1
}
