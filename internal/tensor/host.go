// Package tensor provides host and device tensors of bool, float32 and
// float64 elements with broadcasting elementwise operations.
//
// A Host tensor is a row-major Go slice with a shape. A Device tensor owns
// one buffer on an engine; operations on device tensors are enqueued on the
// engine's shared queue and only wait when results are read back.
package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
)

// Host is a tensor in host memory. len(Data()) always equals Shape().Size().
type Host[T dtype.Element] struct {
	shape shape.Shape
	data  []T
}

func newHost[T dtype.Element](s shape.Shape) *Host[T] {
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return &Host[T]{shape: s.Clone(), data: make([]T, s.Size())}
}

// Zeros returns a tensor of zero values. It panics on an invalid shape.
//
// Example:
//
//	t := tensor.Zeros[float32](shape.Of(3, 4))
func Zeros[T dtype.Element](s shape.Shape) *Host[T] {
	return newHost[T](s)
}

// Ones returns a tensor of ones (true for bool).
func Ones[T dtype.Element](s shape.Shape) *Host[T] {
	return Full(s, one[T]())
}

// Full returns a tensor with every element set to v.
func Full[T dtype.Element](s shape.Shape, v T) *Host[T] {
	t := newHost[T](s)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// FromSlice copies data into a new tensor of shape s.
func FromSlice[T dtype.Element](data []T, s shape.Shape) (*Host[T], error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Size() != len(data) {
		return nil, errors.Wrapf(shape.ErrInvalidShape, "tensor: shape %s holds %d elements, got %d", s, s.Size(), len(data))
	}
	t := &Host[T]{shape: s.Clone(), data: make([]T, len(data))}
	copy(t.data, data)
	return t, nil
}

func one[T dtype.Element]() T {
	var v T
	switch p := any(&v).(type) {
	case *float32:
		*p = 1
	case *float64:
		*p = 1
	case *bool:
		*p = true
	}
	return v
}

// Shape returns a copy of the tensor shape.
func (t *Host[T]) Shape() shape.Shape { return t.shape.Clone() }

// DType returns the element type tag.
func (t *Host[T]) DType() dtype.DataType { return dtype.Of[T]() }

// Len returns the number of elements.
func (t *Host[T]) Len() int { return len(t.data) }

// Data returns the underlying row-major storage. Writes are visible to
// the tensor.
func (t *Host[T]) Data() []T { return t.data }

// At returns the element at the given multi-index.
func (t *Host[T]) At(indices ...int) T {
	return t.data[t.offset(indices)]
}

// Set stores v at the given multi-index.
func (t *Host[T]) Set(v T, indices ...int) {
	t.data[t.offset(indices)] = v
}

func (t *Host[T]) offset(indices []int) int {
	if len(indices) != t.shape.Rank() {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(indices), t.shape.Rank()))
	}
	dims := t.shape.Dimensions()
	strides := t.shape.Strides()
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= dims[i] {
			panic(fmt.Sprintf("tensor: index %d out of bounds for axis %d (size %d)", idx, i, dims[i]))
		}
		off += idx * strides[i]
	}
	return off
}

// Clone returns a deep copy.
func (t *Host[T]) Clone() *Host[T] {
	c := &Host[T]{shape: t.shape.Clone(), data: make([]T, len(t.data))}
	copy(c.data, t.data)
	return c
}

// String renders the elements as nested brackets, outermost axis first.
// A scalar renders as its bare value.
func (t *Host[T]) String() string {
	if t.data == nil {
		return "[]"
	}
	var b strings.Builder
	format(&b, t.shape.Dimensions(), t.data)
	return b.String()
}

func format[T dtype.Element](b *strings.Builder, dims []int, data []T) {
	if len(dims) == 0 {
		fmt.Fprint(b, data[0])
		return
	}
	step := 1
	for _, d := range dims[1:] {
		step *= d
	}
	b.WriteByte('[')
	for i := range dims[0] {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, dims[1:], data[i*step:(i+1)*step])
	}
	b.WriteByte(']')
}
