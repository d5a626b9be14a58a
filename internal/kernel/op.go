// Package kernel defines the closed set of elementwise kernel variants.
//
// A variant is keyed by (operation, element type, rank) and named
// "<op>_<dtype>_<rank>d", for example "add_f32_3d" or "and_bool_2d".
// Floating point types support add, sub, mul, div and eq; bool supports
// eq, and, or. Every family exists for ranks 1 to shape.MaxRank.
package kernel

import "github.com/pkg/errors"

// Op is a binary elementwise operation.
type Op uint8

// Supported operations.
const (
	Add Op = iota
	Sub
	Mul
	Div
	Eq
	And
	Or
)

var opNames = [...]string{
	Add: "add",
	Sub: "sub",
	Mul: "mul",
	Div: "div",
	Eq:  "eq",
	And: "and",
	Or:  "or",
}

var opSymbols = [...]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Eq:  "==",
	And: "&",
	Or:  "|",
}

// String returns the kernel name token of the operation.
func (op Op) String() string {
	if int(op) >= len(opNames) {
		return "unknown"
	}
	return opNames[op]
}

// Symbol returns the infix operator, used by generated kernel sources.
func (op Op) Symbol() string {
	if int(op) >= len(opSymbols) {
		return "?"
	}
	return opSymbols[op]
}

// IsComparison reports whether the op yields bool for any input type.
func (op Op) IsComparison() bool { return op == Eq }

// Ops returns every operation.
func Ops() []Op {
	return []Op{Add, Sub, Mul, Div, Eq, And, Or}
}

// ParseOp parses a name such as "add".
func ParseOp(s string) (Op, error) {
	for _, op := range Ops() {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, errors.Wrapf(ErrNotFound, "unknown operation %q", s)
}
