// Package shape implements tensor shapes and NumPy-style broadcasting.
//
// A Shape is an ordered list of 0 to MaxRank axes. Each axis is a Dim that
// is either statically Known or only known at Runtime; both kinds carry
// their current size, so all arithmetic is ordinary run-time arithmetic and
// the Known tag only enables the early CheckStatic pass.
package shape

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// MaxRank is the highest supported number of axes.
const MaxRank = 6

// Shape is an ordered list of axes, outermost first.
// The empty shape is a scalar.
type Shape []Dim

// Of returns a shape of Known axes.
func Of(sizes ...int) Shape {
	s := make(Shape, len(sizes))
	for i, n := range sizes {
		s[i] = Known(n)
	}
	return s
}

// Dynamic returns a shape of Runtime axes.
func Dynamic(sizes ...int) Shape {
	s := make(Shape, len(sizes))
	for i, n := range sizes {
		s[i] = Runtime(n)
	}
	return s
}

// Scalar returns the rank-0 shape.
func Scalar() Shape { return Shape{} }

// Rank returns the number of axes.
func (s Shape) Rank() int { return len(s) }

// Size returns the total number of elements. A scalar has one element.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d.size
	}
	return n
}

// Dimensions returns the axis sizes, outermost first.
func (s Shape) Dimensions() []int {
	dims := make([]int, len(s))
	for i, d := range s {
		dims[i] = d.size
	}
	return dims
}

// Strides returns dense row-major strides: stride[last] = 1 and
// stride[i] = stride[i+1] * size[i+1].
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1].size
	}
	return strides
}

// IsStatic reports whether every axis is Known.
func (s Shape) IsStatic() bool {
	for _, d := range s {
		if d.runtime {
			return false
		}
	}
	return true
}

// MinSize returns a lower bound on the element count that only uses Known
// axes; Runtime axes count as 1. For static shapes it equals Size.
func (s Shape) MinSize() int {
	n := 1
	for _, d := range s {
		if !d.runtime {
			n *= d.size
		}
	}
	return n
}

// StaticMinSize returns MinSize and true for fully static shapes,
// and 0 and false when any axis is Runtime.
func (s Shape) StaticMinSize() (int, bool) {
	if !s.IsStatic() {
		return 0, false
	}
	return s.MinSize(), true
}

// Validate checks the rank, that no axis is negative and that the element
// count fits in an int.
func (s Shape) Validate() error {
	if len(s) > MaxRank {
		return errors.Wrapf(ErrInvalidShape, "rank %d exceeds %d", len(s), MaxRank)
	}
	n := 1
	for i, d := range s {
		if d.size < 0 {
			return errors.Wrapf(ErrInvalidShape, "dimension %d is %d (must be >= 0)", i, d.size)
		}
		if d.size != 0 && n > math.MaxInt/d.size {
			return errors.Wrapf(ErrInvalidShape, "element count of %v overflows int", s.Dimensions())
		}
		n *= d.size
	}
	return nil
}

// Equal reports whether both shapes have the same sizes.
// The Known/Runtime tags are ignored.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].size != other[i].size {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

// String renders the shape as "(3, ?4)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
