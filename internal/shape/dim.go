package shape

import "strconv"

// Dim is the size of one axis.
//
// A Dim is either Known, fixed where the shape is written down and
// checked eagerly by CheckStatic, or Runtime, a value only known while
// the program runs and checked when shapes are broadcast.
type Dim struct {
	size    int
	runtime bool
}

// Known returns a statically known axis size.
func Known(n int) Dim {
	return Dim{size: n}
}

// Runtime returns an axis size that is only known at run time.
func Runtime(n int) Dim {
	return Dim{size: n, runtime: true}
}

// Size returns the number of elements along the axis.
func (d Dim) Size() int { return d.size }

// IsKnown reports whether the size is statically known.
func (d Dim) IsKnown() bool { return !d.runtime }

// String renders Known sizes as "3" and Runtime sizes as "?3".
func (d Dim) String() string {
	if d.runtime {
		return "?" + strconv.Itoa(d.size)
	}
	return strconv.Itoa(d.size)
}
