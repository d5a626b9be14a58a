package shape

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDim(t *testing.T) {
	k := Known(3)
	r := Runtime(4)

	assert.Equal(t, 3, k.Size())
	assert.True(t, k.IsKnown())
	assert.Equal(t, "3", k.String())

	assert.Equal(t, 4, r.Size())
	assert.False(t, r.IsKnown())
	assert.Equal(t, "?4", r.String())
}

func TestShapeSizeDimensionsStrides(t *testing.T) {
	tests := []struct {
		name    string
		shape   Shape
		size    int
		strides []int
	}{
		{"scalar", Scalar(), 1, []int{}},
		{"1d", Of(5), 5, []int{1}},
		{"2d", Of(3, 4), 12, []int{4, 1}},
		{"3d", Of(2, 3, 4), 24, []int{12, 4, 1}},
		{"4d", Dynamic(2, 1, 3, 2), 12, []int{6, 6, 2, 1}},
		{"5d", Of(1, 2, 1, 2, 3), 12, []int{12, 6, 6, 3, 1}},
		{"6d", Of(2, 2, 2, 2, 2, 2), 64, []int{32, 16, 8, 4, 2, 1}},
		{"zero axis", Of(3, 0), 0, []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.shape.Size())
			assert.Equal(t, tt.strides, tt.shape.Strides())
			assert.Len(t, tt.shape.Dimensions(), tt.shape.Rank())
			require.NoError(t, tt.shape.Validate())
		})
	}
}

func TestMinSize(t *testing.T) {
	n, ok := Of(2, 3, 4).StaticMinSize()
	assert.True(t, ok)
	assert.Equal(t, 24, n)

	mixed := Shape{Known(2), Runtime(7), Known(3)}
	assert.Equal(t, 6, mixed.MinSize())
	assert.LessOrEqual(t, mixed.MinSize(), mixed.Size())

	_, ok = mixed.StaticMinSize()
	assert.False(t, ok)

	n, ok = Scalar().StaticMinSize()
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestValidate(t *testing.T) {
	assert.True(t, errors.Is(Of(2, -1).Validate(), ErrInvalidShape))
	assert.True(t, errors.Is(Of(1, 1, 1, 1, 1, 1, 1).Validate(), ErrInvalidShape))
	assert.True(t, errors.Is(Of(math.MaxInt/2+1, 2).Validate(), ErrInvalidShape))
	assert.True(t, errors.Is(Of(2, 3, math.MaxInt/4).Validate(), ErrInvalidShape))
	assert.NoError(t, Of(math.MaxInt/2, 2).Validate())
	assert.NoError(t, Of(0, math.MaxInt).Validate())
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "()", Scalar().String())
	assert.Equal(t, "(3, ?4)", Shape{Known(3), Runtime(4)}.String())
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
		want []int
	}{
		{"same", Of(3, 4), Of(3, 4), []int{3, 4}},
		{"column row", Of(3, 1), Of(1, 3), []int{3, 3}},
		{"lower rank", Of(2, 3, 4), Of(4), []int{2, 3, 4}},
		{"rank gap two", Of(2, 3, 4), Of(1), []int{2, 3, 4}},
		{"rank gap five", Of(2, 1, 1, 1, 1, 3), Of(3), []int{2, 1, 1, 1, 1, 3}},
		{"rank gap five stretched", Of(2, 1, 1, 1, 1, 1), Of(5), []int{2, 1, 1, 1, 1, 5}},
		{"stretch leading", Of(1, 4), Of(5, 1, 4), []int{5, 1, 4}},
		{"zero axis", Of(0, 3), Of(1, 3), []int{0, 3}},
		{"zero against one", Of(1), Of(0), []int{0}},
		{"zero trailing", Of(2, 1), Of(0), []int{2, 0}},
		{"runtime", Dynamic(3, 1), Of(1, 3), []int{3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab, err := Broadcast(tt.a, tt.b)
			require.NoError(t, err)
			ba, err := Broadcast(tt.b, tt.a)
			require.NoError(t, err)

			assert.Equal(t, tt.want, ab.Dimensions())
			assert.True(t, ab.Equal(ba), "broadcast must be commutative")
		})
	}
}

func TestBroadcastScalar(t *testing.T) {
	for _, s := range []Shape{Scalar(), Of(7), Dynamic(2, 3), Of(1, 2, 3, 4, 5, 6)} {
		got, err := Broadcast(s, Scalar())
		require.NoError(t, err)
		assert.Equal(t, s, got)

		got, err = Broadcast(Scalar(), s)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestBroadcastKnownness(t *testing.T) {
	out, err := Broadcast(Shape{Known(3), Runtime(1)}, Shape{Known(1), Known(4)})
	require.NoError(t, err)
	assert.True(t, out[0].IsKnown())
	assert.False(t, out[1].IsKnown())
	assert.Equal(t, 4, out[1].Size())
}

func TestBroadcastMismatch(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
	}{
		{"static", Of(3), Of(2)},
		{"static inner", Of(2, 3, 4), Of(3, 5)},
		{"runtime", Dynamic(3, 4), Dynamic(3, 5)},
		{"mixed", Shape{Runtime(3)}, Of(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Broadcast(tt.a, tt.b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch))
		})
	}
}

func TestCheckStaticIgnoresRuntime(t *testing.T) {
	require.Error(t, CheckStatic(Of(3, 4), Of(2, 4)))
	assert.NoError(t, CheckStatic(Dynamic(3, 4), Of(2, 4)))
	assert.NoError(t, CheckStatic(Of(3, 1), Of(1, 3)))
}

func TestBroadcastRankLimit(t *testing.T) {
	_, err := Broadcast(Of(1, 1, 1, 1, 1, 1, 2), Of(2))
	assert.True(t, errors.Is(err, ErrInvalidShape))
}

func TestBroadcastSizeOverflow(t *testing.T) {
	half := math.MaxInt/2 + 1
	_, err := Broadcast(Of(half, 1), Of(1, 2))
	assert.True(t, errors.Is(err, ErrInvalidShape))

	out, err := Broadcast(Of(half, 1), Of(1, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Size())
}
