package shape

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name       string
		a, b       Shape
		out        []int
		outStrides []int
		lhs, rhs   []int
	}{
		{
			name: "column row", a: Of(3, 1), b: Of(1, 3),
			out: []int{3, 3}, outStrides: []int{3, 1},
			lhs: []int{1, 0}, rhs: []int{0, 1},
		},
		{
			name: "lower rank", a: Of(2, 3), b: Of(3),
			out: []int{2, 3}, outStrides: []int{3, 1},
			lhs: []int{3, 1}, rhs: []int{0, 1},
		},
		{
			name: "scalar operand", a: Scalar(), b: Of(2, 2),
			out: []int{2, 2}, outStrides: []int{2, 1},
			lhs: []int{0, 0}, rhs: []int{2, 1},
		},
		{
			name: "scalar output", a: Scalar(), b: Scalar(),
			out: []int{}, outStrides: []int{1},
			lhs: []int{0}, rhs: []int{0},
		},
		{
			name: "middle stretch", a: Of(2, 1, 4), b: Of(3, 1),
			out: []int{2, 3, 4}, outStrides: []int{12, 4, 1},
			lhs: []int{4, 0, 1}, rhs: []int{0, 1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.out, p.Out.Dimensions())
			assert.Equal(t, tt.outStrides, p.OutStrides)
			assert.Equal(t, tt.lhs, p.LHS)
			assert.Equal(t, tt.rhs, p.RHS)
			assert.Equal(t, max(1, len(tt.out)), p.Rank())
		})
	}
}

func TestNewPlanMismatch(t *testing.T) {
	_, err := NewPlan(Of(3, 2), Of(2, 3))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

// Every offset must stay in bounds of its operand and stretched axes must
// revisit the same source element.
func TestOffsetReplication(t *testing.T) {
	a := Of(3, 1)
	b := Of(1, 4)
	p, err := NewPlan(a, b)
	require.NoError(t, err)

	for i := 0; i < p.Out.Size(); i++ {
		row, col := i/4, i%4
		ao := Offset(i, p.OutStrides, p.LHS)
		bo := Offset(i, p.OutStrides, p.RHS)

		require.Less(t, ao, a.Size())
		require.Less(t, bo, b.Size())
		assert.Equal(t, row, ao)
		assert.Equal(t, col, bo)
	}
}

func TestOffsetIdentity(t *testing.T) {
	s := Of(2, 3, 1, 2)
	strides := s.Strides()
	for i := 0; i < s.Size(); i++ {
		assert.Equal(t, i, Offset(i, strides, strides))
	}
}
