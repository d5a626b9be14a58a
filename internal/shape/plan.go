package shape

// Plan is the broadcast layout of one binary operation: the output shape
// and, for each operand, strides of the output's rank where stretched and
// absent axes read with stride 0.
type Plan struct {
	Out        Shape
	OutStrides []int
	LHS        []int
	RHS        []int
}

// NewPlan broadcasts a against b and derives the stride arrays.
// A scalar output is promoted to rank 1 so that kernels always see at
// least one axis.
func NewPlan(a, b Shape) (Plan, error) {
	out, err := Broadcast(a, b)
	if err != nil {
		return Plan{}, err
	}

	layout := out
	if len(layout) == 0 {
		layout = Of(1)
	}

	return Plan{
		Out:        out,
		OutStrides: layout.Strides(),
		LHS:        OperandStrides(a, layout),
		RHS:        OperandStrides(b, layout),
	}, nil
}

// Rank returns the kernel rank of the plan, never less than 1.
func (p Plan) Rank() int { return len(p.OutStrides) }

// OperandStrides maps operand onto out. Axes absent from operand, and axes
// of size 1 stretched to a larger output axis, get stride 0; other axes keep
// the operand's natural row-major stride.
func OperandStrides(operand, out Shape) []int {
	strides := make([]int, len(out))
	natural := operand.Strides()
	offset := len(out) - len(operand)
	for k := range out {
		j := k - offset
		if j < 0 {
			continue
		}
		if operand[j].size == 1 && out[k].size != 1 {
			continue
		}
		strides[k] = natural[j]
	}
	return strides
}

// Offset returns the linear operand offset of output element i, decomposing
// i along outStrides most significant axis first. It is the reference
// routine every kernel body follows.
func Offset(i int, outStrides, strides []int) int {
	off := 0
	rem := i
	for k, s := range outStrides {
		if s == 0 {
			continue
		}
		c := rem / s
		rem -= c * s
		off += c * strides[k]
	}
	return off
}
