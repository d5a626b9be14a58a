package host

import (
	"testing"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx    *Context
	queue  accel.Queue
	module accel.Module
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	ctx := New(accel.Options{Workers: workers})
	q, err := ctx.CreateQueue()
	require.NoError(t, err)
	m, err := ctx.LoadModule(kernel.Variants())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = q.Release()
		_ = ctx.Release()
	})
	return &fixture{ctx: ctx, queue: q, module: m}
}

func upload[T dtype.Element](t *testing.T, f *fixture, data []T) accel.Buffer {
	t.Helper()
	buf, err := f.ctx.Alloc(dtype.Of[T](), len(data))
	require.NoError(t, err)
	require.NoError(t, f.queue.Upload(buf, dtype.Bytes(data)))
	return buf
}

func download[T dtype.Element](t *testing.T, f *fixture, buf accel.Buffer) []T {
	t.Helper()
	raw := make([]byte, buf.Len()*buf.DType().Size())
	require.NoError(t, f.queue.Download(raw, buf))
	return append([]T(nil), dtype.View[T](raw)...)
}

func launch(t *testing.T, f *fixture, op kernel.Op, a, b accel.Buffer, sa, sb shape.Shape) accel.Buffer {
	t.Helper()
	p, err := shape.NewPlan(sa, sb)
	require.NoError(t, err)
	v, err := kernel.Lookup(op, a.DType(), p.Out.Rank())
	require.NoError(t, err)
	k, err := f.module.Kernel(v.Name())
	require.NoError(t, err)

	out, err := f.ctx.Alloc(v.OutDType(), p.Out.Size())
	require.NoError(t, err)

	block, err := k.SuggestedBlockSize()
	require.NoError(t, err)
	grid := max(1, (p.Out.Size()+block-1)/block)

	err = f.queue.Launch(k, accel.LaunchConfig{Grid: grid, Block: block}, accel.Args{
		A:   accel.Operand{Buf: a, Strides: p.LHS},
		B:   accel.Operand{Buf: b, Strides: p.RHS},
		Out: accel.Operand{Buf: out, Strides: p.OutStrides},
	})
	require.NoError(t, err)
	return out
}

func TestModuleHasEveryVariant(t *testing.T) {
	f := newFixture(t, 1)
	for _, v := range kernel.Variants() {
		k, err := f.module.Kernel(v.Name())
		require.NoError(t, err, v.Name())
		assert.Equal(t, v, k.Variant())
	}
	_, err := f.module.Kernel("add_bool_1d")
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
}

func TestBroadcastArithmetic(t *testing.T) {
	tests := []struct {
		op   kernel.Op
		a, b float32
		want float32
	}{
		{kernel.Add, 1, 1, 2},
		{kernel.Mul, 1, 3, 3},
		{kernel.Div, 4, 2, 2},
		{kernel.Sub, 1, 3, -2},
	}

	for _, workers := range []int{1, 4} {
		f := newFixture(t, workers)
		for _, tt := range tests {
			t.Run(tt.op.String(), func(t *testing.T) {
				a := upload(t, f, []float32{tt.a, tt.a, tt.a})
				b := upload(t, f, []float32{tt.b, tt.b, tt.b})
				out := launch(t, f, tt.op, a, b, shape.Of(3, 1), shape.Of(1, 3))

				got := download[float32](t, f, out)
				require.Len(t, got, 9)
				for _, v := range got {
					assert.Equal(t, tt.want, v)
				}
			})
		}
	}
}

func TestBoolOps(t *testing.T) {
	f := newFixture(t, 2)
	a := upload(t, f, []bool{true, false, true, false})
	b := upload(t, f, []bool{true, true, false, false})
	s := shape.Of(4)

	assert.Equal(t, []bool{true, false, false, false}, download[bool](t, f, launch(t, f, kernel.And, a, b, s, s)))
	assert.Equal(t, []bool{true, true, true, false}, download[bool](t, f, launch(t, f, kernel.Or, a, b, s, s)))
	assert.Equal(t, []bool{true, false, false, true}, download[bool](t, f, launch(t, f, kernel.Eq, a, b, s, s)))
}

func TestFloatEqualYieldsBool(t *testing.T) {
	f := newFixture(t, 1)
	a := upload(t, f, []float64{1, 2, 3})
	b := upload(t, f, []float64{2})
	out := launch(t, f, kernel.Eq, a, b, shape.Of(3), shape.Of(1))

	assert.Equal(t, dtype.Bool, out.DType())
	assert.Equal(t, []bool{false, true, false}, download[bool](t, f, out))
}

func TestStretchedAxisReplicates(t *testing.T) {
	f := newFixture(t, 3)
	col := upload(t, f, []float64{10, 20, 30})
	row := upload(t, f, []float64{1, 2, 3, 4})
	out := launch(t, f, kernel.Add, col, row, shape.Of(3, 1), shape.Of(4))

	want := []float64{
		11, 12, 13, 14,
		21, 22, 23, 24,
		31, 32, 33, 34,
	}
	assert.Equal(t, want, download[float64](t, f, out))
}

func TestSixDimensions(t *testing.T) {
	f := newFixture(t, 4)
	sa := shape.Of(2, 1, 2, 1, 2, 1)
	sb := shape.Of(1, 3, 1, 2, 1, 2)
	a := make([]float32, sa.Size())
	for i := range a {
		a[i] = float32(i * 100)
	}
	b := make([]float32, sb.Size())
	for i := range b {
		b[i] = float32(i)
	}

	out := launch(t, f, kernel.Add, upload(t, f, a), upload(t, f, b), sa, sb)
	got := download[float32](t, f, out)

	p, err := shape.NewPlan(sa, sb)
	require.NoError(t, err)
	require.Len(t, got, p.Out.Size())
	for i := range got {
		want := a[shape.Offset(i, p.OutStrides, p.LHS)] + b[shape.Offset(i, p.OutStrides, p.RHS)]
		assert.Equal(t, want, got[i], "element %d", i)
	}
}

func TestUploadSizeMismatch(t *testing.T) {
	f := newFixture(t, 1)
	buf, err := f.ctx.Alloc(dtype.Float32, 4)
	require.NoError(t, err)
	assert.Error(t, f.queue.Upload(buf, make([]byte, 8)))
}

func TestInvalidLaunchPoisonsQueue(t *testing.T) {
	f := newFixture(t, 1)
	a := upload(t, f, []float32{1, 2})
	k, err := f.module.Kernel("add_f32_1d")
	require.NoError(t, err)
	out, err := f.ctx.Alloc(dtype.Float32, 2)
	require.NoError(t, err)

	err = f.queue.Launch(k, accel.LaunchConfig{Grid: 1, Block: 0}, accel.Args{
		A:   accel.Operand{Buf: a, Strides: []int{1}},
		B:   accel.Operand{Buf: a, Strides: []int{1}},
		Out: accel.Operand{Buf: out, Strides: []int{1}},
	})
	require.True(t, errors.Is(err, accel.ErrKernelLaunch))

	assert.True(t, errors.Is(f.queue.Synchronize(), accel.ErrKernelLaunch))
	assert.Error(t, f.queue.Upload(a, dtype.Bytes([]float32{3, 4})))
}

func TestDeviceFaultReportedAtSync(t *testing.T) {
	f := newFixture(t, 1)
	a := upload(t, f, []float32{1, 2})
	require.NoError(t, f.queue.Free(a))

	// Launch succeeds: the freed input is only touched when the kernel runs.
	out := launch(t, f, kernel.Add, a, a, shape.Of(2), shape.Of(2))

	err := f.queue.Synchronize()
	require.True(t, errors.Is(err, accel.ErrDeviceExecution))

	raw := make([]byte, 8)
	assert.True(t, errors.Is(f.queue.Download(raw, out), accel.ErrDeviceExecution))
}

func TestReleasedQueue(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.queue.Release())
	assert.True(t, errors.Is(f.queue.Synchronize(), accel.ErrReleased))
	assert.NoError(t, f.queue.Release())
}

func TestRegistered(t *testing.T) {
	b, err := accel.Lookup(Name)
	require.NoError(t, err)
	assert.True(t, b.Available())
}
