//go:build windows

// Package webgpu runs the elementwise kernels through WebGPU compute
// shaders. Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU
// bindings.
//
// WGSL has no f64 in core and no bool storage, so float64 variants are not
// loaded and bool buffers hold one u32 per element on the device; the
// conversion happens in Upload and Download.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/kernelgen"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Name is the registry name of the backend.
const Name = "webgpu"

// maxWorkgroups is the per-dimension dispatch limit of WebGPU.
const maxWorkgroups = 65535

func init() {
	accel.Register(accel.Backend{
		Name:      Name,
		Priority:  10,
		Available: IsAvailable,
		Open: func(opts accel.Options) (accel.Context, error) {
			return New(opts)
		},
	})
}

// Context owns a WebGPU device and its pipeline cache.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	desc     string
	logger   logrus.FieldLogger

	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	released  bool

	// Memory tracking
	memoryStats struct {
		totalAllocatedBytes uint64
		peakMemoryBytes     uint64
		activeBytes         uint64
		activeBuffers       int64
		mu                  sync.Mutex
	}
}

// New creates a WebGPU context on the high-performance adapter.
// Returns an error if WebGPU is not available or initialization fails.
func New(opts accel.Options) (c *Context, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = errors.Wrapf(accel.ErrUnavailable, "webgpu: native library not available: %v", r)
		}
	}()

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrapf(accel.ErrUnavailable, "webgpu: failed to request adapter: %v", adapterErr)
	}

	info := adapter.GetInfo()
	desc := fmt.Sprintf("WebGPU (%v %v %v)", info.Vendor, info.Device, info.Description)

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(accel.ErrUnavailable, "webgpu: failed to request device: %v", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(accel.ErrUnavailable, "webgpu: failed to get queue")
	}

	c = &Context{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		desc:      desc,
		logger:    logger.WithField("backend", Name),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
	c.logger.WithField("device", desc).Info("webgpu: context created")
	return c, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Name implements accel.Context.
func (c *Context) Name() string { return Name }

// Device implements accel.Context.
func (c *Context) Device() string { return c.desc }

// deviceSize returns the device byte size of n elements of dt, aligned to
// 4 bytes and never zero.
func deviceSize(dt dtype.DataType, n int) uint64 {
	size := uint64(n) * 4 //nolint:gosec // G115: n is non-negative
	if size < 4 {
		size = 4
	}
	return (size + 3) &^ 3
}

// Alloc implements accel.Context.
func (c *Context) Alloc(dt dtype.DataType, n int) (accel.Buffer, error) {
	if dt == dtype.Float64 {
		return nil, errors.Wrap(accel.ErrDeviceAllocation, "webgpu: float64 buffers are not supported")
	}
	if n < 0 || uint64(n) > 1<<32-1 {
		return nil, errors.Wrapf(accel.ErrDeviceAllocation, "webgpu: %d elements", n)
	}
	c.mu.RLock()
	released := c.released
	c.mu.RUnlock()
	if released {
		return nil, accel.ErrReleased
	}

	size := deviceSize(dt, n)
	buf, err := c.createBuffer(size)
	if err != nil {
		return nil, err
	}
	c.trackAlloc(size)
	return &Buffer{dt: dt, n: n, size: size, buf: buf}, nil
}

func (c *Context) createBuffer(size uint64) (buf *wgpu.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(accel.ErrDeviceAllocation, "webgpu: %d bytes: %v", size, r)
		}
	}()
	buf = c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	if buf == nil {
		return nil, errors.Wrapf(accel.ErrDeviceAllocation, "webgpu: %d bytes", size)
	}
	return buf, nil
}

func (c *Context) trackAlloc(size uint64) {
	c.memoryStats.mu.Lock()
	defer c.memoryStats.mu.Unlock()
	c.memoryStats.totalAllocatedBytes += size
	c.memoryStats.activeBytes += size
	c.memoryStats.activeBuffers++
	if c.memoryStats.activeBytes > c.memoryStats.peakMemoryBytes {
		c.memoryStats.peakMemoryBytes = c.memoryStats.activeBytes
	}
}

func (c *Context) trackFree(size uint64) {
	c.memoryStats.mu.Lock()
	defer c.memoryStats.mu.Unlock()
	c.memoryStats.activeBytes -= size
	c.memoryStats.activeBuffers--
}

// MemoryStats represents GPU memory usage statistics.
type MemoryStats struct {
	TotalAllocatedBytes uint64
	PeakMemoryBytes     uint64
	ActiveBytes         uint64
	ActiveBuffers       int64
}

// MemoryStats returns current GPU memory usage statistics.
func (c *Context) MemoryStats() MemoryStats {
	c.memoryStats.mu.Lock()
	defer c.memoryStats.mu.Unlock()
	return MemoryStats{
		TotalAllocatedBytes: c.memoryStats.totalAllocatedBytes,
		PeakMemoryBytes:     c.memoryStats.peakMemoryBytes,
		ActiveBytes:         c.memoryStats.activeBytes,
		ActiveBuffers:       c.memoryStats.activeBuffers,
	}
}

// CreateQueue implements accel.Context. WebGPU exposes one queue per
// device; every Queue returned here submits to it.
func (c *Context) CreateQueue() (accel.Queue, error) {
	fence, err := c.createBuffer(4)
	if err != nil {
		return nil, err
	}
	return &Queue{ctx: c, fence: fence}, nil
}

// LoadModule implements accel.Context. Shaders are compiled up front and
// pipelines are created on first use of each kernel.
func (c *Context) LoadModule(variants []kernel.Variant) (m accel.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = errors.Errorf("webgpu: shader compilation failed: %v", r)
		}
	}()

	mod := &Module{ctx: c, variants: map[string]kernel.Variant{}}
	for _, v := range kernelgen.Filter(kernelgen.WGSL, variants) {
		code, err := kernelgen.WGSLShader(v)
		if err != nil {
			return nil, err
		}
		c.compileShader(v.Name(), code)
		mod.variants[v.Name()] = v
	}
	c.logger.WithField("kernels", len(mod.variants)).Info("webgpu: module loaded")
	return mod, nil
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Context's shaders map.
func (c *Context) compileShader(name, code string) *wgpu.ShaderModule {
	c.mu.RLock()
	if shader, exists := c.shaders[name]; exists {
		c.mu.RUnlock()
		return shader
	}
	c.mu.RUnlock()

	shader := c.device.CreateShaderModuleWGSL(code)

	c.mu.Lock()
	c.shaders[name] = shader
	c.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (c *Context) getOrCreatePipeline(name string) (*wgpu.ComputePipeline, error) {
	c.mu.RLock()
	pipeline, exists := c.pipelines[name]
	shader := c.shaders[name]
	c.mu.RUnlock()
	if exists {
		return pipeline, nil
	}
	if shader == nil {
		return nil, errors.Wrapf(kernel.ErrNotFound, "webgpu: no shader for %s", name)
	}

	// Auto layout (nil layout) derived from the shader bindings.
	pipeline = c.device.CreateComputePipelineSimple(nil, shader, "main")

	c.mu.Lock()
	c.pipelines[name] = pipeline
	c.mu.Unlock()
	return pipeline, nil
}

// Release releases all WebGPU resources.
func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true

	for _, p := range c.pipelines {
		p.Release()
	}
	c.pipelines = nil
	for _, s := range c.shaders {
		s.Release()
	}
	c.shaders = nil

	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
	return nil
}

// Buffer is a storage buffer on the device.
type Buffer struct {
	dt   dtype.DataType
	n    int
	size uint64
	buf  *wgpu.Buffer
}

// DType implements accel.Buffer.
func (b *Buffer) DType() dtype.DataType { return b.dt }

// Len implements accel.Buffer.
func (b *Buffer) Len() int { return b.n }

func asBuffer(b accel.Buffer) (*Buffer, error) {
	wb, ok := b.(*Buffer)
	if !ok || wb == nil {
		return nil, errors.Wrapf(accel.ErrForeignBuffer, "webgpu: %T", b)
	}
	return wb, nil
}

// Module is the set of WGSL kernels loaded on the device.
type Module struct {
	ctx      *Context
	variants map[string]kernel.Variant
}

// Kernel implements accel.Module.
func (m *Module) Kernel(name string) (accel.Kernel, error) {
	v, ok := m.variants[name]
	if !ok {
		return nil, errors.Wrapf(kernel.ErrNotFound, "webgpu: %s not in module", name)
	}
	return &Kernel{ctx: m.ctx, variant: v}, nil
}

// Release implements accel.Module. Shaders live in the context cache.
func (m *Module) Release() error { return nil }

// Kernel is one compute shader entry point.
type Kernel struct {
	ctx     *Context
	variant kernel.Variant
}

// Variant implements accel.Kernel.
func (k *Kernel) Variant() kernel.Variant { return k.variant }

// SuggestedBlockSize implements accel.Kernel. The block size is the
// workgroup size compiled into the shader.
func (k *Kernel) SuggestedBlockSize() (int, error) { return kernelgen.WorkgroupSize, nil }

// FixedBlockSize implements accel.Kernel. WGSL fixes the workgroup size at
// shader compile time.
func (k *Kernel) FixedBlockSize() int { return kernelgen.WorkgroupSize }

// toDevice converts host bytes to the device layout.
func toDevice(dt dtype.DataType, src []byte, size uint64) []byte {
	out := make([]byte, size)
	if dt != dtype.Bool {
		copy(out, src)
		return out
	}
	for i, v := range src {
		if v != 0 {
			binary.LittleEndian.PutUint32(out[4*i:], 1)
		}
	}
	return out
}

// fromDevice converts device bytes into the host layout of dst.
func fromDevice(dt dtype.DataType, dst, src []byte) {
	if dt != dtype.Bool {
		copy(dst, src)
		return
	}
	for i := range dst {
		dst[i] = 0
		if binary.LittleEndian.Uint32(src[4*i:]) != 0 {
			dst[i] = 1
		}
	}
}
