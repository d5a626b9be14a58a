package host

import (
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
)

// body runs logical threads [lo, hi) of one elementwise kernel.
type body func(a, b, out []byte, as, bs, outStrides []int, lo, hi int)

// elementwise builds the body shared by every variant: threads past the
// output are no-ops, the rest decompose their index along the output
// strides and read each operand through its own (possibly zero) strides.
// Rank is carried by the stride slices.
func elementwise[T, O dtype.Element](f func(x, y T) O) body {
	return func(a, b, out []byte, as, bs, outStrides []int, lo, hi int) {
		av := dtype.View[T](a)
		bv := dtype.View[T](b)
		ov := dtype.View[O](out)
		hi = min(hi, len(ov))
		for i := lo; i < hi; i++ {
			ai := shape.Offset(i, outStrides, as)
			bi := shape.Offset(i, outStrides, bs)
			ov[i] = f(av[ai], bv[bi])
		}
	}
}

func bodyFor(v kernel.Variant) (body, error) {
	var (
		b  body
		ok bool
	)
	switch v.DType {
	case dtype.Float32:
		b, ok = floatBody[float32](v.Op)
	case dtype.Float64:
		b, ok = floatBody[float64](v.Op)
	case dtype.Bool:
		b, ok = boolBody(v.Op)
	}
	if !ok {
		return nil, errors.Wrapf(kernel.ErrNotFound, "host: no body for %s", v)
	}
	return b, nil
}

func floatBody[T dtype.Float](op kernel.Op) (body, bool) {
	switch op {
	case kernel.Add:
		return elementwise(func(x, y T) T { return x + y }), true
	case kernel.Sub:
		return elementwise(func(x, y T) T { return x - y }), true
	case kernel.Mul:
		return elementwise(func(x, y T) T { return x * y }), true
	case kernel.Div:
		return elementwise(func(x, y T) T { return x / y }), true
	case kernel.Eq:
		return elementwise(func(x, y T) bool { return x == y }), true
	default:
		return nil, false
	}
}

func boolBody(op kernel.Op) (body, bool) {
	switch op {
	case kernel.Eq:
		return elementwise(func(x, y bool) bool { return x == y }), true
	case kernel.And:
		return elementwise(func(x, y bool) bool { return x && y }), true
	case kernel.Or:
		return elementwise(func(x, y bool) bool { return x || y }), true
	default:
		return nil, false
	}
}
