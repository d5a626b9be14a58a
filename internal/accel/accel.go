// Package accel defines the execution context every accelerator backend
// implements: buffer allocation, one asynchronous FIFO queue, kernel modules
// and launches.
//
// Work submitted to a Queue runs in submission order. Launch and Upload
// return as soon as the work is enqueued; Download and Synchronize block
// until everything enqueued before them has finished. A device failure
// poisons the queue: it is reported by the next Synchronize or Download and
// by every call after that.
package accel

import (
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
)

// MaxBlockSize is the largest block size any backend accepts.
const MaxBlockSize = 1024

// Buffer is a device allocation of Len elements of DType.
type Buffer interface {
	DType() dtype.DataType
	Len() int
}

// Operand is one kernel argument: a buffer and its per-axis strides.
type Operand struct {
	Buf     Buffer
	Strides []int
}

// Args are the arguments of an elementwise kernel in launch order.
type Args struct {
	A, B, Out Operand
}

// LaunchConfig is the 1D launch geometry.
type LaunchConfig struct {
	Grid  int
	Block int
}

// Threads returns the number of logical threads launched.
func (c LaunchConfig) Threads() int { return c.Grid * c.Block }

// Kernel is a loaded kernel function.
type Kernel interface {
	Variant() kernel.Variant
	// SuggestedBlockSize returns the block size the device recommends
	// for full occupancy.
	SuggestedBlockSize() (int, error)
	// FixedBlockSize returns the only block size the kernel can run with,
	// or 0 when any size up to MaxBlockSize works.
	FixedBlockSize() int
}

// Module is a set of loaded kernels addressed by name.
type Module interface {
	Kernel(name string) (Kernel, error)
	Release() error
}

// Queue is an asynchronous, in-order execution queue.
type Queue interface {
	// Upload copies src into dst. src may be reused once Upload returns.
	Upload(dst Buffer, src []byte) error
	// Download waits for all queued work, then copies src into dst.
	Download(dst []byte, src Buffer) error
	// Launch enqueues k over cfg with args.
	Launch(k Kernel, cfg LaunchConfig, args Args) error
	// Free releases buf after all work enqueued so far.
	Free(buf Buffer) error
	// Synchronize waits for all queued work and returns the queue fault.
	Synchronize() error
	Release() error
}

// Context is an accelerator execution context.
type Context interface {
	// Name returns the backend name, e.g. "cuda".
	Name() string
	// Device describes the selected device.
	Device() string
	// Alloc returns an uninitialized buffer of n elements.
	Alloc(dt dtype.DataType, n int) (Buffer, error)
	CreateQueue() (Queue, error)
	// LoadModule compiles and loads the given kernel variants.
	LoadModule(variants []kernel.Variant) (Module, error)
	Release() error
}
