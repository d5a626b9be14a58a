package accel

import (
	"sync"

	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/pkg/errors"
)

var (
	// ErrDeviceAllocation is returned when a buffer cannot be allocated.
	ErrDeviceAllocation = errors.New("accel: device allocation failed")

	// ErrKernelLaunch is returned for an invalid launch.
	ErrKernelLaunch = errors.New("accel: kernel launch failed")

	// ErrDeviceExecution is returned when queued work failed on the device.
	ErrDeviceExecution = errors.New("accel: device execution failed")

	// ErrUnavailable is returned when a backend cannot be opened here.
	ErrUnavailable = errors.New("accel: backend unavailable")

	// ErrReleased is returned when using a released context or queue.
	ErrReleased = errors.New("accel: released")

	// ErrForeignBuffer is returned for a buffer another backend allocated.
	ErrForeignBuffer = errors.New("accel: foreign buffer")
)

// Fault records the first failure of a queue.
type Fault struct {
	mu  sync.Mutex
	err error
}

// Set stores err if no fault is recorded yet and reports whether it did.
func (f *Fault) Set(err error) bool {
	if err == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false
	}
	f.err = err
	return true
}

// Err returns the recorded fault, or nil.
func (f *Fault) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// CheckLaunch validates cfg against the output length.
func CheckLaunch(name string, cfg LaunchConfig, outLen int) error {
	if cfg.Block <= 0 || cfg.Block > MaxBlockSize {
		return errors.Wrapf(ErrKernelLaunch, "%s: block size %d out of range [1, %d]", name, cfg.Block, MaxBlockSize)
	}
	if cfg.Grid <= 0 {
		return errors.Wrapf(ErrKernelLaunch, "%s: grid size %d", name, cfg.Grid)
	}
	if cfg.Threads() < outLen {
		return errors.Wrapf(ErrKernelLaunch, "%s: %d threads for %d outputs", name, cfg.Threads(), outLen)
	}
	return nil
}

// CheckArgs validates stride ranks and element types against the variant.
func CheckArgs(k Kernel, args Args) error {
	v := k.Variant()
	for _, op := range []struct {
		name string
		o    Operand
		dt   dtype.DataType
	}{
		{"a", args.A, v.DType},
		{"b", args.B, v.DType},
		{"out", args.Out, v.OutDType()},
	} {
		if op.o.Buf == nil {
			return errors.Wrapf(ErrKernelLaunch, "%s: nil %s buffer", v, op.name)
		}
		if len(op.o.Strides) != v.Rank {
			return errors.Wrapf(ErrKernelLaunch, "%s: %s has %d strides", v, op.name, len(op.o.Strides))
		}
		if op.o.Buf.DType() != op.dt {
			return errors.Wrapf(ErrKernelLaunch, "%s: %s is %s, want %s", v, op.name, op.o.Buf.DType(), op.dt)
		}
	}
	return nil
}
