//go:build linux

package cuda

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
)

// maxPendingFrees bounds the deferred frees a queue holds before Free
// synchronizes on its own.
const maxPendingFrees = 64

// Queue wraps one CUDA stream.
type Queue struct {
	ctx    *Context
	stream uintptr
	fault  accel.Fault

	mu      sync.Mutex
	pending []*Buffer // freed after the next synchronization
}

func (q *Queue) poison(err error) error {
	if q.fault.Set(err) {
		q.ctx.logger.WithError(err).Error("cuda: queue poisoned")
	}
	return q.fault.Err()
}

// Upload implements accel.Queue. The driver stages pageable src before
// returning, so src may be reused right away.
func (q *Queue) Upload(dst accel.Buffer, src []byte) error {
	if err := q.fault.Err(); err != nil {
		return err
	}
	buf, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if len(src) != buf.byteLen() {
		return errors.Errorf("cuda: upload of %d bytes into %d-byte buffer", len(src), buf.byteLen())
	}
	if len(src) == 0 {
		return nil
	}
	err = q.ctx.do(func() error {
		return check(cuMemcpyHtoDAsync(buf.ptr, unsafe.Pointer(&src[0]), uint64(len(src)), q.stream), "cuMemcpyHtoDAsync")
	})
	if err != nil {
		return q.poison(errors.Wrap(accel.ErrDeviceExecution, err.Error()))
	}
	return nil
}

// Download implements accel.Queue.
func (q *Queue) Download(dst []byte, src accel.Buffer) error {
	buf, err := asBuffer(src)
	if err != nil {
		return err
	}
	if err := q.Synchronize(); err != nil {
		return err
	}
	if len(dst) != buf.byteLen() {
		return errors.Errorf("cuda: download of %d-byte buffer into %d bytes", buf.byteLen(), len(dst))
	}
	if len(dst) == 0 {
		return nil
	}
	err = q.ctx.do(func() error {
		return check(cuMemcpyDtoH(unsafe.Pointer(&dst[0]), buf.ptr, uint64(len(dst))), "cuMemcpyDtoH")
	})
	if err != nil {
		return q.poison(errors.Wrap(accel.ErrDeviceExecution, err.Error()))
	}
	return nil
}

// kernelArgs holds the parameter values of one launch. cuLaunchKernel reads
// them through the pointer array before it returns.
type kernelArgs struct {
	ptr     [3]uint64
	n       [3]uint64
	strides [3][shape.MaxRank]uint64
}

func packArgs(args accel.Args) (*kernelArgs, []unsafe.Pointer, error) {
	ka := &kernelArgs{}
	params := make([]unsafe.Pointer, 0, 9)
	for i, op := range []accel.Operand{args.A, args.B, args.Out} {
		buf, err := asBuffer(op.Buf)
		if err != nil {
			return nil, nil, errors.Wrap(accel.ErrKernelLaunch, err.Error())
		}
		ka.ptr[i] = uint64(buf.ptr)
		ka.n[i] = uint64(buf.n) //nolint:gosec // G115: lengths are non-negative
		for k, s := range op.Strides {
			ka.strides[i][k] = uint64(s) //nolint:gosec // G115: strides are non-negative
		}
		params = append(params,
			unsafe.Pointer(&ka.ptr[i]),
			unsafe.Pointer(&ka.n[i]),
			unsafe.Pointer(&ka.strides[i][0]),
		)
	}
	return ka, params, nil
}

// Launch implements accel.Queue.
func (q *Queue) Launch(k accel.Kernel, cfg accel.LaunchConfig, args accel.Args) error {
	if err := q.fault.Err(); err != nil {
		return err
	}
	ck, ok := k.(*Kernel)
	if !ok {
		return errors.Wrapf(accel.ErrKernelLaunch, "cuda: foreign kernel %T", k)
	}
	name := ck.variant.Name()
	if err := accel.CheckArgs(k, args); err != nil {
		return q.poison(err)
	}
	if err := accel.CheckLaunch(name, cfg, args.Out.Buf.Len()); err != nil {
		return q.poison(err)
	}
	if info := q.ctx.info; info.MaxGridX > 0 && cfg.Grid > info.MaxGridX {
		return q.poison(errors.Wrapf(accel.ErrKernelLaunch, "cuda: %s: grid %d exceeds %d", name, cfg.Grid, info.MaxGridX))
	}

	ka, params, err := packArgs(args)
	if err != nil {
		return q.poison(err)
	}

	err = q.ctx.do(func() error {
		//nolint:gosec // G115: grid and block are validated above
		return check(cuLaunchKernel(ck.fn,
			uint32(cfg.Grid), 1, 1,
			uint32(cfg.Block), 1, 1,
			0, q.stream,
			unsafe.Pointer(&params[0]), nil,
		), "cuLaunchKernel("+name+")")
	})
	runtime.KeepAlive(ka)
	if err != nil {
		return q.poison(errors.Wrap(accel.ErrKernelLaunch, err.Error()))
	}
	return nil
}

// Free implements accel.Queue. The allocation is returned to the driver
// after the next synchronization, once no queued work can still use it.
// Once maxPendingFrees allocations are waiting, Free synchronizes itself.
func (q *Queue) Free(buf accel.Buffer) error {
	cb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if q.deferFree(cb) {
		return q.Synchronize()
	}
	return nil
}

// deferFree queues b and reports whether the pending list is full.
func (q *Queue) deferFree(b *Buffer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, b)
	return len(q.pending) >= maxPendingFrees
}

// Synchronize implements accel.Queue.
func (q *Queue) Synchronize() error {
	if err := q.fault.Err(); err != nil {
		return err
	}
	err := q.ctx.do(func() error {
		return check(cuStreamSynchronize(q.stream), "cuStreamSynchronize")
	})
	if err != nil {
		return q.poison(errors.Wrap(accel.ErrDeviceExecution, err.Error()))
	}
	return q.freePending()
}

func (q *Queue) freePending() error {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	return q.ctx.do(func() error {
		for _, b := range pending {
			if b.ptr == 0 {
				continue
			}
			if err := check(cuMemFree(b.ptr), "cuMemFree"); err != nil {
				q.ctx.logger.WithError(err).Warn("cuda: free failed")
			}
			b.ptr = 0
		}
		return nil
	})
}

// Release implements accel.Queue.
func (q *Queue) Release() error {
	err := q.ctx.do(func() error {
		cuStreamSynchronize(q.stream)
		return check(cuStreamDestroy(q.stream), "cuStreamDestroy")
	})
	if ferr := q.freePending(); err == nil {
		err = ferr
	}
	return err
}
