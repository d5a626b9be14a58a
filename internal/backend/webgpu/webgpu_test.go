//go:build windows

package webgpu

import (
	"testing"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/kernelgen"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSize(t *testing.T) {
	assert.Equal(t, uint64(4), deviceSize(dtype.Float32, 0))
	assert.Equal(t, uint64(12), deviceSize(dtype.Float32, 3))
	assert.Equal(t, uint64(12), deviceSize(dtype.Bool, 3))
}

func TestBoolLayout(t *testing.T) {
	dev := toDevice(dtype.Bool, []byte{1, 0, 1}, 12)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}, dev)

	host := make([]byte, 3)
	fromDevice(dtype.Bool, host, dev)
	assert.Equal(t, []byte{1, 0, 1}, host)
}

func TestCheckU32(t *testing.T) {
	assert.NoError(t, checkU32("k", 0, 1, 1<<31))
	assert.True(t, errors.Is(checkU32("k", -1), accel.ErrKernelLaunch))
}

func TestDispatchSize(t *testing.T) {
	for _, tt := range []struct {
		grid, x, y int
	}{
		{1, 1, 1},
		{maxWorkgroups, maxWorkgroups, 1},
		{maxWorkgroups + 1, maxWorkgroups, 2},
		{3 * maxWorkgroups, maxWorkgroups, 3},
		{256 * maxWorkgroups, maxWorkgroups, 256},
	} {
		x, y, err := dispatchSize(tt.grid)
		require.NoError(t, err, tt.grid)
		assert.Equal(t, tt.x, x, tt.grid)
		assert.Equal(t, tt.y, y, tt.grid)
		assert.GreaterOrEqual(t, x*y, tt.grid)
	}

	_, _, err := dispatchSize(256*maxWorkgroups + 1)
	assert.True(t, errors.Is(err, accel.ErrKernelLaunch))
	_, _, err = dispatchSize(0)
	assert.True(t, errors.Is(err, accel.ErrKernelLaunch))
}

func TestKernelBlockSizeIsFixed(t *testing.T) {
	k := &Kernel{}
	assert.Equal(t, kernelgen.WorkgroupSize, k.FixedBlockSize())
}

func newDevice(t *testing.T) (*Context, accel.Queue, accel.Module) {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}
	ctx, err := New(accel.Options{})
	require.NoError(t, err)
	q, err := ctx.CreateQueue()
	require.NoError(t, err)
	m, err := ctx.LoadModule(kernel.Variants())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = q.Release()
		_ = ctx.Release()
	})
	return ctx, q, m
}

func TestFloat64NotLoaded(t *testing.T) {
	ctx, _, m := newDevice(t)

	_, err := m.Kernel("add_f64_1d")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
	_, err = ctx.Alloc(dtype.Float64, 4)
	assert.True(t, errors.Is(err, accel.ErrDeviceAllocation))
}

func TestBroadcastMul(t *testing.T) {
	ctx, q, m := newDevice(t)

	upload := func(data []float32) accel.Buffer {
		buf, err := ctx.Alloc(dtype.Float32, len(data))
		require.NoError(t, err)
		require.NoError(t, q.Upload(buf, dtype.Bytes(data)))
		return buf
	}
	a := upload([]float32{1, 2, 3})
	b := upload([]float32{10, 100})

	p, err := shape.NewPlan(shape.Of(3, 1), shape.Of(2))
	require.NoError(t, err)
	k, err := m.Kernel("mul_f32_2d")
	require.NoError(t, err)
	out, err := ctx.Alloc(dtype.Float32, p.Out.Size())
	require.NoError(t, err)

	require.NoError(t, q.Launch(k, accel.LaunchConfig{Grid: 1, Block: kernelgen.WorkgroupSize}, accel.Args{
		A:   accel.Operand{Buf: a, Strides: p.LHS},
		B:   accel.Operand{Buf: b, Strides: p.RHS},
		Out: accel.Operand{Buf: out, Strides: p.OutStrides},
	}))

	raw := make([]byte, 6*4)
	require.NoError(t, q.Download(raw, out))
	assert.Equal(t, []float32{10, 100, 20, 200, 30, 300}, dtype.View[float32](raw))
}

func TestBoolOr(t *testing.T) {
	ctx, q, m := newDevice(t)

	a, err := ctx.Alloc(dtype.Bool, 4)
	require.NoError(t, err)
	b, err := ctx.Alloc(dtype.Bool, 4)
	require.NoError(t, err)
	require.NoError(t, q.Upload(a, dtype.Bytes([]bool{true, false, true, false})))
	require.NoError(t, q.Upload(b, dtype.Bytes([]bool{true, true, false, false})))
	out, err := ctx.Alloc(dtype.Bool, 4)
	require.NoError(t, err)

	k, err := m.Kernel("or_bool_1d")
	require.NoError(t, err)
	require.NoError(t, q.Launch(k, accel.LaunchConfig{Grid: 1, Block: kernelgen.WorkgroupSize}, accel.Args{
		A:   accel.Operand{Buf: a, Strides: []int{1}},
		B:   accel.Operand{Buf: b, Strides: []int{1}},
		Out: accel.Operand{Buf: out, Strides: []int{1}},
	}))

	raw := make([]byte, 4)
	require.NoError(t, q.Download(raw, out))
	assert.Equal(t, []bool{true, true, true, false}, dtype.View[bool](raw))

	stats := ctx.MemoryStats()
	assert.Equal(t, int64(3), stats.ActiveBuffers)
}

func TestWrongBlockSizePoisons(t *testing.T) {
	ctx, q, m := newDevice(t)

	buf, err := ctx.Alloc(dtype.Float32, 2)
	require.NoError(t, err)
	k, err := m.Kernel("add_f32_1d")
	require.NoError(t, err)

	err = q.Launch(k, accel.LaunchConfig{Grid: 1, Block: 64}, accel.Args{
		A:   accel.Operand{Buf: buf, Strides: []int{1}},
		B:   accel.Operand{Buf: buf, Strides: []int{1}},
		Out: accel.Operand{Buf: buf, Strides: []int{1}},
	})
	require.True(t, errors.Is(err, accel.ErrKernelLaunch))
	assert.True(t, errors.Is(q.Synchronize(), accel.ErrKernelLaunch))
}
