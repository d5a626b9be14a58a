package shape

import "github.com/pkg/errors"

// CheckStatic verifies every aligned pair of Known axes without looking at
// Runtime values. Pairs with a Runtime side are left to Broadcast.
func CheckStatic(a, b Shape) error {
	rank := max(len(a), len(b))
	for i := 0; i < rank; i++ {
		ai, bi := len(a)-1-i, len(b)-1-i
		if ai < 0 || bi < 0 {
			break
		}
		da, db := a[ai], b[bi]
		if da.runtime || db.runtime {
			continue
		}
		if !compatible(da.size, db.size) {
			return mismatch(a, b, rank-1-i, da, db)
		}
	}
	return nil
}

// Broadcast combines two shapes with right-aligned NumPy rules.
//
// The shorter shape is matched against the trailing axes of the longer one,
// whose leading axes pass through unchanged. Aligned sizes must be equal or
// one of them 1; a size-1 axis takes the other size (1 against 0 is 0).
// An output axis is Known only when both inputs are Known. A scalar
// broadcasts against everything.
//
// Examples:
//
//	(3, 1) + (1, 3) → (3, 3)
//	(2, 3, 4) + (4) → (2, 3, 4)
//	(3, 4) + (3, 5) → ErrShapeMismatch
func Broadcast(a, b Shape) (Shape, error) {
	if err := CheckStatic(a, b); err != nil {
		return nil, err
	}
	if len(a) == 0 {
		return b.Clone(), nil
	}
	if len(b) == 0 {
		return a.Clone(), nil
	}

	rank := max(len(a), len(b))
	if rank > MaxRank {
		return nil, errors.Wrapf(ErrInvalidShape, "rank %d exceeds %d", rank, MaxRank)
	}

	out := make(Shape, rank)
	for i := 0; i < rank; i++ {
		ai, bi := len(a)-1-i, len(b)-1-i
		switch {
		case ai < 0:
			out[rank-1-i] = b[bi]
		case bi < 0:
			out[rank-1-i] = a[ai]
		default:
			da, db := a[ai], b[bi]
			if !compatible(da.size, db.size) {
				return nil, mismatch(a, b, rank-1-i, da, db)
			}
			out[rank-1-i] = Dim{
				size:    stretch(da.size, db.size),
				runtime: da.runtime || db.runtime,
			}
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// stretch returns the output size of a compatible pair: a size-1 side takes
// the other side's size, so 1 against 0 is 0.
func stretch(a, b int) int {
	if a == 1 {
		return b
	}
	return a
}

func compatible(a, b int) bool {
	return a == b || a == 1 || b == 1
}

func mismatch(a, b Shape, axis int, da, db Dim) error {
	return errors.Wrapf(ErrShapeMismatch, "%v vs %v (axis %d: %v vs %v)", a, b, axis, da, db)
}
