//go:build windows

package webgpu

import (
	"encoding/binary"
	"math"
	"sync"
	"unsafe"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/kernelgen"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// maxBatchSize is the number of pending commands that forces a submit.
const maxBatchSize = 32

// releaser is a transient GPU object kept alive until its command ran.
type releaser interface{ Release() }

// Queue batches command buffers and submits them to the device queue.
type Queue struct {
	ctx   *Context
	fence *wgpu.Buffer
	fault accel.Fault

	// Command batching: commands are accumulated and submitted together,
	// transient objects and freed buffers are released after the next
	// synchronization.
	mu              sync.Mutex
	pendingCommands []*wgpu.CommandBuffer
	transient       []releaser
	pendingFree     []*Buffer
	released        bool
}

func (q *Queue) poison(err error) error {
	if q.fault.Set(err) {
		q.ctx.logger.WithError(err).Error("webgpu: queue poisoned")
	}
	return q.fault.Err()
}

// guard converts a panic from the native layer into a queue fault.
func (q *Queue) guard(kind error, err *error) {
	if r := recover(); r != nil {
		*err = q.poison(errors.Wrapf(kind, "webgpu: %v", r))
	}
}

// queueCommand adds a command buffer to the pending batch.
// Must hold q.mu.
func (q *Queue) queueCommandLocked(cmd *wgpu.CommandBuffer, transient ...releaser) {
	q.pendingCommands = append(q.pendingCommands, cmd)
	q.transient = append(q.transient, transient...)
	if len(q.pendingCommands) >= maxBatchSize {
		q.flushCommandsLocked()
	}
}

// flushCommandsLocked submits all pending command buffers (must hold q.mu).
func (q *Queue) flushCommandsLocked() {
	if len(q.pendingCommands) == 0 {
		return
	}
	q.ctx.queue.Submit(q.pendingCommands...)
	for _, cmd := range q.pendingCommands {
		cmd.Release()
	}
	q.pendingCommands = q.pendingCommands[:0]
}

func (q *Queue) check() error {
	if q.released {
		return accel.ErrReleased
	}
	return q.fault.Err()
}

// createStaging creates a mapped buffer holding data for upload.
func (q *Queue) createStaging(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := q.ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// Upload implements accel.Queue. src is staged before Upload returns.
func (q *Queue) Upload(dst accel.Buffer, src []byte) (err error) {
	buf, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if want := buf.n * buf.dt.Size(); len(src) != want {
		return errors.Errorf("webgpu: upload of %d bytes into %d-byte buffer", len(src), want)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.check(); err != nil {
		return err
	}
	if err := q.live(buf); err != nil {
		return err
	}
	defer q.guard(accel.ErrDeviceExecution, &err)

	staging := q.createStaging(toDevice(buf.dt, src, buf.size), wgpu.BufferUsageCopySrc)
	encoder := q.ctx.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, buf.buf, 0, buf.size)
	q.queueCommandLocked(encoder.Finish(nil), staging, encoder)
	return nil
}

// Download implements accel.Queue.
func (q *Queue) Download(dst []byte, src accel.Buffer) (err error) {
	buf, err := asBuffer(src)
	if err != nil {
		return err
	}
	if want := buf.n * buf.dt.Size(); len(dst) != want {
		return errors.Errorf("webgpu: download of %d-byte buffer into %d bytes", want, len(dst))
	}
	if err := q.Synchronize(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.check(); err != nil {
		return err
	}
	if err := q.live(buf); err != nil {
		return err
	}
	defer q.guard(accel.ErrDeviceExecution, &err)

	data, err := q.readBufferLocked(buf.buf, buf.size)
	if err != nil {
		return q.poison(errors.Wrap(accel.ErrDeviceExecution, err.Error()))
	}
	fromDevice(buf.dt, dst, data)
	return nil
}

// readBufferLocked reads a buffer back through a MAP_READ staging buffer.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (q *Queue) readBufferLocked(src *wgpu.Buffer, size uint64) ([]byte, error) {
	q.flushCommandsLocked()

	stagingBuffer := q.ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := q.ctx.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	q.ctx.queue.Submit(cmdBuffer)
	cmdBuffer.Release()
	encoder.Release()

	if err := stagingBuffer.MapAsync(q.ctx.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "failed to map staging buffer")
	}
	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	result := append([]byte(nil), unsafe.Slice((*byte)(mappedPtr), size)...)
	stagingBuffer.Unmap()
	return result, nil
}

// live fails with a device fault when b was freed by an earlier
// synchronization.
func (q *Queue) live(b *Buffer) error {
	if b.buf == nil {
		return q.poison(errors.Wrap(accel.ErrDeviceExecution, "webgpu: use of freed buffer"))
	}
	return nil
}

func checkU32(name string, values ...int) error {
	for _, v := range values {
		if v < 0 || v > math.MaxUint32 {
			return errors.Wrapf(accel.ErrKernelLaunch, "webgpu: %s: %d does not fit u32", name, v)
		}
	}
	return nil
}

// dispatchSize folds a 1-D grid of workgroups into x by y rows of at most
// maxWorkgroups each. Shaders rebuild the flat u32 index from
// num_workgroups.x, and the spare workgroups of the last row fail the
// bounds check. Every thread index must fit u32.
func dispatchSize(grid int) (x, y int, err error) {
	if grid <= 0 {
		return 0, 0, errors.Wrapf(accel.ErrKernelLaunch, "grid size %d", grid)
	}
	x = min(grid, maxWorkgroups)
	y = (grid + x - 1) / x
	if uint64(x)*uint64(y)*kernelgen.WorkgroupSize > math.MaxUint32+1 { //nolint:gosec // G115: x and y are positive
		return 0, 0, errors.Wrapf(accel.ErrKernelLaunch, "%d workgroups exceed the u32 index space", grid)
	}
	return x, y, nil
}

// Launch implements accel.Queue.
func (q *Queue) Launch(k accel.Kernel, cfg accel.LaunchConfig, args accel.Args) (err error) {
	wk, ok := k.(*Kernel)
	if !ok {
		return errors.Wrapf(accel.ErrKernelLaunch, "webgpu: foreign kernel %T", k)
	}
	name := wk.variant.Name()

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.check(); err != nil {
		return err
	}
	if err := accel.CheckArgs(k, args); err != nil {
		return q.poison(err)
	}
	if err := accel.CheckLaunch(name, cfg, args.Out.Buf.Len()); err != nil {
		return q.poison(err)
	}
	if cfg.Block != kernelgen.WorkgroupSize {
		return q.poison(errors.Wrapf(accel.ErrKernelLaunch, "webgpu: %s: block %d, shader workgroup is %d", name, cfg.Block, kernelgen.WorkgroupSize))
	}
	gx, gy, err := dispatchSize(cfg.Grid)
	if err != nil {
		return q.poison(errors.Wrapf(err, "webgpu: %s", name))
	}

	var bufs [3]*Buffer
	for i, op := range []accel.Operand{args.A, args.B, args.Out} {
		b, err := asBuffer(op.Buf)
		if err != nil {
			return q.poison(errors.Wrap(accel.ErrKernelLaunch, err.Error()))
		}
		if err := q.live(b); err != nil {
			return err
		}
		if err := checkU32(name, append([]int{b.n}, op.Strides...)...); err != nil {
			return q.poison(err)
		}
		bufs[i] = b
	}

	pipeline, err := q.ctx.getOrCreatePipeline(name)
	if err != nil {
		return q.poison(errors.Wrap(accel.ErrKernelLaunch, err.Error()))
	}
	defer q.guard(accel.ErrKernelLaunch, &err)

	words := kernelgen.WGSLParams(bufs[2].n, bufs[0].n, bufs[1].n, args.Out.Strides, args.A.Strides, args.B.Strides)
	params := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(params[4*i:], w)
	}
	bufferParams := q.createStaging(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := q.ctx.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufs[0].buf, 0, bufs[0].size),
		wgpu.BufferBindingEntry(1, bufs[1].buf, 0, bufs[1].size),
		wgpu.BufferBindingEntry(2, bufs[2].buf, 0, bufs[2].size),
		wgpu.BufferBindingEntry(3, bufferParams, 0, uint64(len(params))),
	})

	encoder := q.ctx.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: both dimensions are bounded by maxWorkgroups
	computePass.DispatchWorkgroups(uint32(gx), uint32(gy), 1)
	computePass.End()

	q.queueCommandLocked(encoder.Finish(nil), computePass, encoder, bindGroup, bindGroupLayout, bufferParams)
	return nil
}

// Free implements accel.Queue. The buffer is released after the next
// synchronization.
func (q *Queue) Free(buf accel.Buffer) error {
	wb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.check(); err != nil {
		return err
	}
	q.pendingFree = append(q.pendingFree, wb)
	return nil
}

// Synchronize implements accel.Queue: it flushes the batch and waits on a
// fence read that completes after all submitted work.
func (q *Queue) Synchronize() (err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.check(); err != nil {
		return err
	}
	defer q.guard(accel.ErrDeviceExecution, &err)

	if _, err := q.readBufferLocked(q.fence, 4); err != nil {
		return q.poison(errors.Wrap(accel.ErrDeviceExecution, err.Error()))
	}
	q.releaseCompletedLocked()
	return nil
}

func (q *Queue) releaseCompletedLocked() {
	for _, r := range q.transient {
		r.Release()
	}
	q.transient = q.transient[:0]
	for _, b := range q.pendingFree {
		if b.buf != nil {
			b.buf.Release()
			b.buf = nil
			q.ctx.trackFree(b.size)
		}
	}
	q.pendingFree = q.pendingFree[:0]
}

// Release implements accel.Queue.
func (q *Queue) Release() error {
	err := q.Synchronize()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return nil
	}
	q.released = true
	q.releaseCompletedLocked()
	if q.fence != nil {
		q.fence.Release()
		q.fence = nil
	}
	if errors.Is(err, accel.ErrReleased) {
		return nil
	}
	return err
}
