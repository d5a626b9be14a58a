package tensor

import (
	"math"
	"testing"

	"github.com/born-ml/gpubcast/internal/config"
	"github.com/born-ml/gpubcast/internal/engine"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmeticBroadcast(t *testing.T) {
	e := openEngine(t)
	col := toDevice(t, e, []float32{2, 4, 8}, shape.Of(3, 1))
	row := toDevice(t, e, []float32{1, 2, 4}, shape.Of(1, 3))

	for _, tc := range []struct {
		name string
		op   func(a, b *Device[float32]) (*Device[float32], error)
		want []float32
	}{
		{"add", Add[float32], []float32{3, 4, 6, 5, 6, 8, 9, 10, 12}},
		{"sub", Sub[float32], []float32{1, 0, -2, 3, 2, 0, 7, 6, 4}},
		{"mul", Mul[float32], []float32{2, 4, 8, 4, 8, 16, 8, 16, 32}},
		{"div", Div[float32], []float32{2, 1, 0.5, 4, 2, 1, 8, 4, 2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.op(col, row)
			require.NoError(t, err)
			assert.Equal(t, []int{3, 3}, out.Shape().Dimensions())

			h := toHost(t, out)
			assert.Equal(t, tc.want, h.Data())
		})
	}
}

func TestAddFloat64(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float64{1, 2, 3}, shape.Of(3, 1))
	b := toDevice(t, e, []float64{10, 20, 30}, shape.Of(1, 3))

	out, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, "[[11, 21, 31], [12, 22, 32], [13, 23, 33]]", toHost(t, out).String())
}

func TestDivByZero(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float64{1, -1, 0}, shape.Of(3))
	z := toDevice(t, e, []float64{0}, shape.Scalar())

	out, err := Div(a, z)
	require.NoError(t, err)
	got := toHost(t, out).Data()
	assert.True(t, math.IsInf(got[0], 1))
	assert.True(t, math.IsInf(got[1], -1))
	assert.True(t, math.IsNaN(got[2]))
}

func TestLogical(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []bool{true, false}, shape.Of(2, 1))
	b := toDevice(t, e, []bool{true, false}, shape.Of(1, 2))

	and, err := And(a, b)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false}, toHost(t, and).Data())

	or, err := Or(a, b)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, false}, toHost(t, or).Data())

	eq, err := Equal(a, b)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, toHost(t, eq).Data())
}

func TestEqualFloat(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{1, 2, 3}, shape.Of(3))
	b := toDevice(t, e, []float32{2}, shape.Scalar())

	out, err := Equal(a, b)
	require.NoError(t, err)
	h := toHost(t, out)
	assert.Equal(t, []bool{false, true, false}, h.Data())
	assert.Equal(t, "[false, true, false]", h.String())
}

func TestStrideZeroReplication(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{0, 1, 2, 3, 4, 5}, shape.Of(2, 3, 1))
	b := toDevice(t, e, []float32{0, 100, 200, 300}, shape.Of(4))

	out, err := Add(a, b)
	require.NoError(t, err)
	h := toHost(t, out)
	require.Equal(t, []int{2, 3, 4}, h.Shape().Dimensions())
	for i := range 2 {
		for j := range 3 {
			for k := range 4 {
				assert.Equal(t, float32(i*3+j+100*k), h.At(i, j, k), "at (%d, %d, %d)", i, j, k)
			}
		}
	}
}

func TestScalarOperands(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float64{3}, shape.Scalar())
	b := toDevice(t, e, []float64{4}, shape.Scalar())

	out, err := Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Shape().Rank())
	assert.Equal(t, "12", toHost(t, out).String())
}

func TestRank6(t *testing.T) {
	e := openEngine(t)
	s := shape.Of(2, 1, 2, 1, 2, 1)
	data := make([]float32, s.Size())
	for i := range data {
		data[i] = float32(i)
	}
	a := toDevice(t, e, data, s)
	b := toDevice(t, e, []float32{1}, shape.Of(1, 1, 1, 1, 1, 1))

	out, err := Sub(a, b)
	require.NoError(t, err)
	h := toHost(t, out)
	for i, v := range h.Data() {
		assert.Equal(t, float32(i)-1, v)
	}
}

func TestShapeMismatch(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{1, 2, 3, 4, 5, 6}, shape.Of(2, 3))
	b := toDevice(t, e, make([]float32, 12), shape.Of(4, 3))
	before := e.Stats()

	_, err := Add(a, b)
	assert.True(t, errors.Is(err, shape.ErrShapeMismatch))
	assert.Equal(t, before, e.Stats())

	c := toDevice(t, e, []float32{1, 2}, shape.Dynamic(2))
	d := toDevice(t, e, []float32{1, 2, 3}, shape.Dynamic(3))
	_, err = Mul(c, d)
	assert.True(t, errors.Is(err, shape.ErrShapeMismatch))
}

func TestEngineMismatch(t *testing.T) {
	e1 := openEngine(t)
	e2 := openEngine(t)
	a := toDevice(t, e1, []float32{1}, shape.Of(1))
	b := toDevice(t, e2, []float32{1}, shape.Of(1))

	_, err := Add(a, b)
	assert.True(t, errors.Is(err, ErrEngineMismatch))
}

func TestIdempotent(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{1.5, -2, 3}, shape.Of(3, 1))
	b := toDevice(t, e, []float32{0.1, 0.2}, shape.Of(2))

	first, err := Mul(a, b)
	require.NoError(t, err)
	second, err := Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, toHost(t, first).Data(), toHost(t, second).Data())
}

func TestOpsAreAsynchronous(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{1, 2}, shape.Of(2))

	out := a
	for range 10 {
		next, err := Add(out, a)
		require.NoError(t, err)
		out = next
	}
	assert.Equal(t, []float32{11, 22}, toHost(t, out).Data())
	assert.Equal(t, uint64(10), e.Stats().Launches)
}

func TestEmptyResult(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{}, shape.Of(0, 3))
	b := toDevice(t, e, []float32{1, 2, 3}, shape.Of(3))

	out, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, "[]", toHost(t, out).String())
	assert.Zero(t, e.Stats().Launches)
}

func TestZeroAgainstOneAxis(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{}, shape.Of(0, 3))
	b := toDevice(t, e, []float32{1, 2, 3}, shape.Of(1, 3))

	for _, pair := range [][2]*Device[float32]{{a, b}, {b, a}} {
		out, err := Add(pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, []int{0, 3}, out.Shape().Dimensions())
		assert.Empty(t, toHost(t, out).Data())
	}

	col := toDevice(t, e, []float32{7}, shape.Of(1))
	out, err := Mul(col, toDevice(t, e, []float32{}, shape.Of(2, 0)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, out.Shape().Dimensions())

	require.NoError(t, e.Synchronize())
	assert.Zero(t, e.Stats().Launches)
}

func TestBlockSizeOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendHost
	cfg.BlockSize = 2
	logger, _ := test.NewNullLogger()
	e, err := engine.Open(cfg, engine.WithLogger(logger))
	require.NoError(t, err)
	defer e.Close()

	a := toDevice(t, e, []float32{1, 2, 3, 4, 5}, shape.Of(5))
	b := toDevice(t, e, []float32{10}, shape.Of(1))
	out, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 12, 13, 14, 15}, toHost(t, out).Data())
}

func TestOpSymbolsInErrors(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []float32{1, 2}, shape.Of(2))
	b := toDevice(t, e, []float32{1, 2, 3}, shape.Of(3))
	_, err := Add(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), kernel.Add.Symbol())
}

func TestFilledBroadcastExamples(t *testing.T) {
	e := openEngine(t)
	full := func(v float32, dims ...int) *Device[float32] {
		d, err := Full(shape.Of(dims...), v).ToDevice(e)
		require.NoError(t, err)
		return d
	}

	for _, tc := range []struct {
		name string
		op   func(a, b *Device[float32]) (*Device[float32], error)
		a, b float32
		want float32
	}{
		{"add", Add[float32], 1, 1, 2},
		{"mul", Mul[float32], 1, 3, 3},
		{"div", Div[float32], 4, 2, 2},
		{"sub", Sub[float32], 1, 3, -2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.op(full(tc.a, 3, 1), full(tc.b, 1, 3))
			require.NoError(t, err)
			h := toHost(t, out)
			assert.Equal(t, []int{3, 3}, h.Shape().Dimensions())
			assert.Equal(t, Full(shape.Of(3, 3), tc.want).Data(), h.Data())
		})
	}
}

func TestBoolAndVector(t *testing.T) {
	e := openEngine(t)
	a := toDevice(t, e, []bool{true, false, true, false}, shape.Of(4))
	b := toDevice(t, e, []bool{true, true, false, false}, shape.Of(4))

	out, err := And(a, b)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false}, toHost(t, out).Data())
}
