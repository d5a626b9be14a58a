// Package host implements the accelerator interface on the CPU.
//
// The host device behaves like a GPU stream: one worker goroutine drains a
// FIFO of copies, launches and frees, and each launch fans out over blocks
// of logical threads with the parallel package. It is always available and
// is the reference every other backend is tested against.
package host

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/parallel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Name is the registry name of the backend.
const Name = "host"

// DefaultBlockSize is the block size suggested by host kernels.
const DefaultBlockSize = 256

func init() {
	accel.Register(accel.Backend{
		Name:      Name,
		Priority:  0,
		Available: func() bool { return true },
		Open: func(opts accel.Options) (accel.Context, error) {
			return New(opts), nil
		},
	})
}

// Context is the host execution context.
type Context struct {
	workers  parallel.Config
	logger   logrus.FieldLogger
	released atomic.Bool
}

// New returns a host context. opts.Workers bounds kernel parallelism,
// 0 means one worker per CPU.
func New(opts accel.Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Context{
		workers: parallel.DefaultConfig().WithWorkers(opts.Workers),
		logger:  logger.WithField("backend", Name),
	}
}

// Name implements accel.Context.
func (c *Context) Name() string { return Name }

// Device implements accel.Context.
func (c *Context) Device() string {
	return fmt.Sprintf("host cpu (%d workers)", max(1, c.workers.NumWorkers))
}

// Alloc implements accel.Context. Host buffers are zeroed by the Go
// runtime, callers must not rely on it.
func (c *Context) Alloc(dt dtype.DataType, n int) (accel.Buffer, error) {
	if c.released.Load() {
		return nil, accel.ErrReleased
	}
	if n < 0 {
		return nil, errors.Wrapf(accel.ErrDeviceAllocation, "host: %d elements", n)
	}
	return &Buffer{dt: dt, n: n, data: make([]byte, n*dt.Size())}, nil
}

// CreateQueue implements accel.Context.
func (c *Context) CreateQueue() (accel.Queue, error) {
	if c.released.Load() {
		return nil, accel.ErrReleased
	}
	return newQueue(c), nil
}

// LoadModule implements accel.Context.
func (c *Context) LoadModule(variants []kernel.Variant) (accel.Module, error) {
	if c.released.Load() {
		return nil, accel.ErrReleased
	}
	m := &Module{kernels: make(map[string]*Kernel, len(variants))}
	for _, v := range variants {
		body, err := bodyFor(v)
		if err != nil {
			return nil, err
		}
		m.kernels[v.Name()] = &Kernel{variant: v, body: body}
	}
	c.logger.WithField("kernels", len(m.kernels)).Debug("host: module loaded")
	return m, nil
}

// Release implements accel.Context.
func (c *Context) Release() error {
	c.released.Store(true)
	return nil
}

// Buffer is a host allocation standing in for device memory.
type Buffer struct {
	dt   dtype.DataType
	n    int
	data []byte
}

// DType implements accel.Buffer.
func (b *Buffer) DType() dtype.DataType { return b.dt }

// Len implements accel.Buffer.
func (b *Buffer) Len() int { return b.n }

// Module holds host kernels by name.
type Module struct {
	kernels map[string]*Kernel
}

// Kernel implements accel.Module.
func (m *Module) Kernel(name string) (accel.Kernel, error) {
	k, ok := m.kernels[name]
	if !ok {
		return nil, errors.Wrapf(kernel.ErrNotFound, "host: %s not in module", name)
	}
	return k, nil
}

// Release implements accel.Module.
func (m *Module) Release() error { return nil }

// Kernel is a loaded host kernel.
type Kernel struct {
	variant kernel.Variant
	body    body
}

// Variant implements accel.Kernel.
func (k *Kernel) Variant() kernel.Variant { return k.variant }

// SuggestedBlockSize implements accel.Kernel.
func (k *Kernel) SuggestedBlockSize() (int, error) { return DefaultBlockSize, nil }

// FixedBlockSize implements accel.Kernel.
func (k *Kernel) FixedBlockSize() int { return 0 }

func asBuffer(b accel.Buffer) (*Buffer, error) {
	hb, ok := b.(*Buffer)
	if !ok || hb == nil {
		return nil, errors.Wrapf(accel.ErrForeignBuffer, "host: %T", b)
	}
	return hb, nil
}
