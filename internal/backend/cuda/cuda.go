//go:build linux

// Package cuda runs the elementwise kernels on NVIDIA GPUs through the CUDA
// driver API.
//
// Kernels are generated as PTX by kernelgen and JIT-compiled by the driver
// when the module is loaded. Every context owns one non-blocking stream;
// copies and launches are enqueued on it and only Download and Synchronize
// wait for it.
package cuda

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/kernelgen"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Name is the registry name of the backend.
const Name = "cuda"

func init() {
	accel.Register(accel.Backend{
		Name:      Name,
		Priority:  20,
		Available: IsAvailable,
		Open: func(opts accel.Options) (accel.Context, error) {
			return New(opts)
		},
	})
}

// IsAvailable reports whether libcuda loads and exposes at least one device.
func IsAvailable() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if err := initDriver(); err != nil {
		return false
	}
	var n int32
	return cuDeviceGetCount(&n) == cudaSuccess && n > 0
}

// DeviceInfo describes a CUDA device.
type DeviceInfo struct {
	Index      int
	Name       string
	TotalMemMB int
	SMCount    int
	ComputeMaj int
	ComputeMin int
	MaxThreads int
	MaxGridX   int
}

func (d *DeviceInfo) String() string {
	return fmt.Sprintf("%s (SM %d.%d, %d SMs, %d MB)", d.Name, d.ComputeMaj, d.ComputeMin, d.SMCount, d.TotalMemMB)
}

// Context is a CUDA context bound to one device.
type Context struct {
	mu       sync.Mutex
	ctx      uintptr
	info     *DeviceInfo
	logger   logrus.FieldLogger
	released bool
}

// New creates a context on device opts.Device.
func New(opts accel.Options) (*Context, error) {
	if err := initDriver(); err != nil {
		return nil, errors.Wrap(accel.ErrUnavailable, err.Error())
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var dev int32
	//nolint:gosec // G115: device ordinals are small
	if err := check(cuDeviceGet(&dev, int32(opts.Device)), "cuDeviceGet"); err != nil {
		return nil, errors.Wrap(accel.ErrUnavailable, err.Error())
	}

	info, err := queryDevice(opts.Device, dev)
	if err != nil {
		return nil, err
	}

	c := &Context{info: info, logger: logger.WithField("backend", Name)}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := check(cuCtxCreate(&c.ctx, 0, dev), "cuCtxCreate"); err != nil {
		return nil, err
	}

	c.logger.WithField("device", info.String()).Info("cuda: context created")
	return c, nil
}

func queryDevice(index int, dev int32) (*DeviceInfo, error) {
	info := &DeviceInfo{Index: index}

	name := make([]byte, 256)
	if err := check(cuDeviceGetName(&name[0], int32(len(name)), dev), "cuDeviceGetName"); err != nil {
		return nil, err
	}
	info.Name = goString(name)

	var total uint64
	if err := check(cuDeviceTotalMem(&total, dev), "cuDeviceTotalMem"); err != nil {
		return nil, err
	}
	info.TotalMemMB = int(total / (1024 * 1024)) //nolint:gosec // G115: fits

	attr := func(a int32) int {
		var v int32
		cuDeviceGetAttribute(&v, a, dev)
		return int(v)
	}
	info.SMCount = attr(attrMultiprocessorCount)
	info.ComputeMaj = attr(attrComputeCapabilityMajor)
	info.ComputeMin = attr(attrComputeCapabilityMinor)
	info.MaxThreads = attr(attrMaxThreadsPerBlock)
	info.MaxGridX = attr(attrMaxGridDimX)
	return info, nil
}

// do runs fn on a locked OS thread with the context current.
func (c *Context) do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return accel.ErrReleased
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := check(cuCtxSetCurrent(c.ctx), "cuCtxSetCurrent"); err != nil {
		return err
	}
	return fn()
}

// Name implements accel.Context.
func (c *Context) Name() string { return Name }

// Device implements accel.Context.
func (c *Context) Device() string { return c.info.String() }

// Info returns the device information.
func (c *Context) Info() *DeviceInfo { return c.info }

// Alloc implements accel.Context. Zero-length buffers carry a null pointer.
func (c *Context) Alloc(dt dtype.DataType, n int) (accel.Buffer, error) {
	if n < 0 {
		return nil, errors.Wrapf(accel.ErrDeviceAllocation, "cuda: %d elements", n)
	}
	buf := &Buffer{dt: dt, n: n}
	size := buf.byteLen()
	if size == 0 {
		return buf, nil
	}
	err := c.do(func() error {
		return check(cuMemAlloc(&buf.ptr, uint64(size)), "cuMemAlloc")
	})
	if err != nil {
		return nil, errors.Wrapf(accel.ErrDeviceAllocation, "cuda: %d bytes: %v", size, err)
	}
	return buf, nil
}

// CreateQueue implements accel.Context.
func (c *Context) CreateQueue() (accel.Queue, error) {
	q := &Queue{ctx: c}
	err := c.do(func() error {
		return check(cuStreamCreate(&q.stream, streamNonBlocking), "cuStreamCreate")
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// LoadModule implements accel.Context. All variants are emitted into one
// PTX image and loaded with a single cuModuleLoadData.
func (c *Context) LoadModule(variants []kernel.Variant) (accel.Module, error) {
	src, err := kernelgen.PTXModule(variants)
	if err != nil {
		return nil, err
	}
	image := cString(src)

	m := &Module{ctx: c, variants: make(map[string]kernel.Variant, len(variants)), kernels: map[string]*Kernel{}}
	for _, v := range variants {
		m.variants[v.Name()] = v
	}
	err = c.do(func() error {
		return check(cuModuleLoadData(&m.handle, unsafe.Pointer(&image[0])), "cuModuleLoadData")
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithField("kernels", len(variants)).Info("cuda: module loaded")
	return m, nil
}

// Release implements accel.Context.
func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	return check(cuCtxDestroy(c.ctx), "cuCtxDestroy")
}

// Buffer is a device allocation.
type Buffer struct {
	dt  dtype.DataType
	n   int
	ptr uintptr
}

// DType implements accel.Buffer.
func (b *Buffer) DType() dtype.DataType { return b.dt }

// Len implements accel.Buffer.
func (b *Buffer) Len() int { return b.n }

// DevicePtr returns the raw device address.
func (b *Buffer) DevicePtr() uintptr { return b.ptr }

func (b *Buffer) byteLen() int { return b.n * b.dt.Size() }

func asBuffer(b accel.Buffer) (*Buffer, error) {
	cb, ok := b.(*Buffer)
	if !ok || cb == nil {
		return nil, errors.Wrapf(accel.ErrForeignBuffer, "cuda: %T", b)
	}
	return cb, nil
}

// Module is a loaded PTX module.
type Module struct {
	ctx      *Context
	handle   uintptr
	variants map[string]kernel.Variant

	mu      sync.Mutex
	kernels map[string]*Kernel
}

// Kernel implements accel.Module. Functions are resolved on first use.
func (m *Module) Kernel(name string) (accel.Kernel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.kernels[name]; ok {
		return k, nil
	}
	v, ok := m.variants[name]
	if !ok {
		return nil, errors.Wrapf(kernel.ErrNotFound, "cuda: %s not in module", name)
	}

	k := &Kernel{ctx: m.ctx, variant: v}
	cname := cString(name)
	err := m.ctx.do(func() error {
		return check(cuModuleGetFunction(&k.fn, m.handle, &cname[0]), "cuModuleGetFunction("+name+")")
	})
	if err != nil {
		return nil, errors.Wrap(kernel.ErrNotFound, err.Error())
	}
	m.kernels[name] = k
	return k, nil
}

// Release implements accel.Module.
func (m *Module) Release() error {
	return m.ctx.do(func() error {
		return check(cuModuleUnload(m.handle), "cuModuleUnload")
	})
}

// Kernel is a resolved CUDA function.
type Kernel struct {
	ctx     *Context
	variant kernel.Variant
	fn      uintptr

	once  sync.Once
	block int
	err   error
}

// Variant implements accel.Kernel.
func (k *Kernel) Variant() kernel.Variant { return k.variant }

// SuggestedBlockSize implements accel.Kernel using the occupancy API.
func (k *Kernel) SuggestedBlockSize() (int, error) {
	k.once.Do(func() {
		var minGrid, block int32
		k.err = k.ctx.do(func() error {
			return check(cuOccupancyMaxPotentialBlockSize(&minGrid, &block, k.fn, 0, 0, 0), "cuOccupancyMaxPotentialBlockSize")
		})
		k.block = int(block)
	})
	return k.block, k.err
}

// FixedBlockSize implements accel.Kernel.
func (k *Kernel) FixedBlockSize() int { return 0 }
