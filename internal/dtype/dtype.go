// Package dtype describes the element types a tensor can hold and how they
// are laid out in host and device memory.
package dtype

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Float is the constraint for floating point element types.
type Float interface {
	float32 | float64
}

// Element is the constraint for every supported element type.
type Element interface {
	float32 | float64 | bool
}

// DataType is the runtime tag of an element type.
type DataType uint8

// Supported data types.
const (
	Bool DataType = iota
	Float32
	Float64
)

// ErrUnknown is returned when a data type name cannot be parsed.
var ErrUnknown = errors.New("dtype: unknown data type")

var (
	dataTypeSize   = [...]int{Bool: 1, Float32: 4, Float64: 8}
	dataTypeString = [...]string{Bool: "bool", Float32: "float32", Float64: "float64"}
	dataTypeToken  = [...]string{Bool: "bool", Float32: "f32", Float64: "f64"}
)

// Size returns the host byte size of one element.
func (dt DataType) Size() int {
	if int(dt) >= len(dataTypeSize) {
		panic("dtype: unknown data type")
	}
	return dataTypeSize[dt]
}

// String returns the Go name of the type.
func (dt DataType) String() string {
	if int(dt) >= len(dataTypeString) {
		return "unknown"
	}
	return dataTypeString[dt]
}

// Token returns the short name used in kernel names, e.g. "f32".
func (dt DataType) Token() string {
	if int(dt) >= len(dataTypeToken) {
		return "unknown"
	}
	return dataTypeToken[dt]
}

// IsFloat reports whether dt is a floating point type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// All returns every supported data type.
func All() []DataType {
	return []DataType{Bool, Float32, Float64}
}

// Parse accepts either the Go name ("float32") or the kernel token ("f32").
func Parse(s string) (DataType, error) {
	for _, dt := range All() {
		if s == dt.String() || s == dt.Token() {
			return dt, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknown, "%q", s)
}

// Of returns the DataType of the type parameter.
func Of[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case bool:
		return Bool
	default:
		panic("dtype: unsupported type")
	}
}

// Bytes reinterprets s as raw bytes without copying.
func Bytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(s[0]))
	//nolint:gosec // unsafe.Slice for zero-copy conversion, length derived from len(s)
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size)
}

// View reinterprets b as a slice of T without copying.
// len(b) must be a multiple of the element size.
func View[T Element](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	n := len(b) / size
	if n == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy conversion, bounds checked by n
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
