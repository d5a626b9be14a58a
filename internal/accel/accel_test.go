package accel

import (
	"testing"

	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct {
	dt dtype.DataType
	n  int
}

func (b fakeBuffer) DType() dtype.DataType { return b.dt }
func (b fakeBuffer) Len() int              { return b.n }

type fakeKernel struct{ v kernel.Variant }

func (k fakeKernel) Variant() kernel.Variant          { return k.v }
func (k fakeKernel) SuggestedBlockSize() (int, error) { return 256, nil }
func (k fakeKernel) FixedBlockSize() int              { return 0 }

func TestFault(t *testing.T) {
	var f Fault
	assert.NoError(t, f.Err())
	assert.False(t, f.Set(nil))

	first := errors.New("first")
	assert.True(t, f.Set(first))
	assert.False(t, f.Set(errors.New("second")))
	assert.Equal(t, first, f.Err())
}

func TestCheckLaunch(t *testing.T) {
	assert.NoError(t, CheckLaunch("k", LaunchConfig{Grid: 4, Block: 256}, 1000))

	for _, cfg := range []LaunchConfig{
		{Grid: 1, Block: 0},
		{Grid: 1, Block: MaxBlockSize + 1},
		{Grid: 0, Block: 256},
		{Grid: 3, Block: 256},
	} {
		err := CheckLaunch("k", cfg, 1000)
		assert.True(t, errors.Is(err, ErrKernelLaunch), "%+v", cfg)
	}
}

func TestCheckArgs(t *testing.T) {
	k := fakeKernel{kernel.Variant{Op: kernel.Eq, DType: dtype.Float32, Rank: 2}}
	f32 := fakeBuffer{dtype.Float32, 4}
	out := fakeBuffer{dtype.Bool, 4}

	ok := Args{
		A:   Operand{Buf: f32, Strides: []int{2, 1}},
		B:   Operand{Buf: f32, Strides: []int{0, 1}},
		Out: Operand{Buf: out, Strides: []int{2, 1}},
	}
	require.NoError(t, CheckArgs(k, ok))

	badRank := ok
	badRank.B.Strides = []int{1}
	assert.True(t, errors.Is(CheckArgs(k, badRank), ErrKernelLaunch))

	badType := ok
	badType.Out.Buf = f32
	assert.True(t, errors.Is(CheckArgs(k, badType), ErrKernelLaunch))

	missing := ok
	missing.A.Buf = nil
	assert.True(t, errors.Is(CheckArgs(k, missing), ErrKernelLaunch))
}

func TestRegistry(t *testing.T) {
	Register(Backend{Name: "test-low", Priority: -100, Available: func() bool { return true }})
	Register(Backend{Name: "test-high", Priority: 100, Available: func() bool { return false }})

	b, err := Lookup("test-high")
	require.NoError(t, err)
	assert.Equal(t, 100, b.Priority)

	_, err = Lookup("missing")
	assert.True(t, errors.Is(err, ErrUnavailable))

	all := Backends()
	require.NotEmpty(t, all)
	assert.Equal(t, "test-high", all[0].Name)
	assert.Equal(t, "test-low", all[len(all)-1].Name)

	assert.Panics(t, func() { Register(Backend{Name: "test-low"}) })
}
