package kernel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
)

// ErrNotFound is returned for a variant outside the supported set.
var ErrNotFound = errors.New("kernel: variant not found")

// Variant identifies one specialized kernel.
type Variant struct {
	Op    Op
	DType dtype.DataType
	Rank  int
}

// Name returns the kernel symbol, e.g. "add_f32_3d".
func (v Variant) Name() string {
	return fmt.Sprintf("%s_%s_%dd", v.Op, v.DType.Token(), v.Rank)
}

// String implements fmt.Stringer.
func (v Variant) String() string { return v.Name() }

// OutDType returns the element type written by the kernel.
func (v Variant) OutDType() dtype.DataType {
	if v.Op.IsComparison() {
		return dtype.Bool
	}
	return v.DType
}

// Supports reports whether (op, dt) is a valid pair, independent of rank.
func Supports(op Op, dt dtype.DataType) bool {
	switch dt {
	case dtype.Float32, dtype.Float64:
		return op == Add || op == Sub || op == Mul || op == Div || op == Eq
	case dtype.Bool:
		return op == Eq || op == And || op == Or
	default:
		return false
	}
}

// Lookup returns the variant for (op, dt, rank). Rank 0 is promoted to 1.
func Lookup(op Op, dt dtype.DataType, rank int) (Variant, error) {
	if rank == 0 {
		rank = 1
	}
	v := Variant{Op: op, DType: dt, Rank: rank}
	if !Supports(op, dt) || rank < 1 || rank > shape.MaxRank {
		return Variant{}, errors.Wrapf(ErrNotFound, "%s", v.Name())
	}
	return v, nil
}

// ParseName parses a kernel symbol such as "eq_f64_6d".
func ParseName(name string) (Variant, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], "d") {
		return Variant{}, errors.Wrapf(ErrNotFound, "malformed kernel name %q", name)
	}

	op, err := ParseOp(parts[0])
	if err != nil {
		return Variant{}, err
	}
	dt, err := dtype.Parse(parts[1])
	if err != nil {
		return Variant{}, errors.Wrapf(ErrNotFound, "kernel %q: %v", name, err)
	}
	rank, err := strconv.Atoi(strings.TrimSuffix(parts[2], "d"))
	if err != nil {
		return Variant{}, errors.Wrapf(ErrNotFound, "kernel %q: bad rank", name)
	}
	// Lookup promotes rank 0; a symbol always names a compiled rank.
	if rank < 1 {
		return Variant{}, errors.Wrapf(ErrNotFound, "kernel %q: rank %d", name, rank)
	}
	v, err := Lookup(op, dt, rank)
	if err != nil {
		return Variant{}, err
	}
	if v.Name() != name {
		return Variant{}, errors.Wrapf(ErrNotFound, "kernel %q: non-canonical name", name)
	}
	return v, nil
}

// Variants returns the full closed set in a stable order:
// float32, float64 and bool families, each op for ranks 1..MaxRank.
func Variants() []Variant {
	var out []Variant
	for _, dt := range []dtype.DataType{dtype.Float32, dtype.Float64, dtype.Bool} {
		out = append(out, Family(dt)...)
	}
	return out
}

// Family returns every variant operating on dt.
func Family(dt dtype.DataType) []Variant {
	var out []Variant
	for _, op := range Ops() {
		if !Supports(op, dt) {
			continue
		}
		for r := 1; r <= shape.MaxRank; r++ {
			out = append(out, Variant{Op: op, DType: dt, Rank: r})
		}
	}
	return out
}
