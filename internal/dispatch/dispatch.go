// Package dispatch turns a binary elementwise operation on two device
// buffers into a kernel launch.
//
// For a call Binary(op, a, b) the dispatcher
//
//  1. broadcasts the operand shapes (ErrShapeMismatch before any device work),
//  2. selects the (op, dtype, rank) kernel variant and resolves it in the module,
//  3. allocates an uninitialized output buffer,
//  4. derives the launch geometry from the kernel's suggested block size,
//  5. enqueues the launch and returns without waiting for it.
package dispatch

import (
	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrDTypeMismatch is returned when the operands have different element types.
var ErrDTypeMismatch = errors.New("dispatch: operand element types differ")

// Operand is a device buffer viewed with a shape.
type Operand struct {
	Buf   accel.Buffer
	Shape shape.Shape
}

// Result is the output of a dispatched operation.
type Result struct {
	Buf     accel.Buffer
	Shape   shape.Shape
	Variant kernel.Variant
	Launch  accel.LaunchConfig
}

// Dispatcher launches elementwise kernels on one context and queue.
type Dispatcher struct {
	ctx       accel.Context
	queue     accel.Queue
	module    accel.Module
	blockSize int
	logger    logrus.FieldLogger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBlockSize overrides the kernel-suggested block size. 0 keeps the
// suggestion.
func WithBlockSize(n int) Option {
	return func(d *Dispatcher) { d.blockSize = n }
}

// WithLogger sets the logger used for launch tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New returns a dispatcher over an already loaded module.
func New(ctx accel.Context, queue accel.Queue, module accel.Module, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ctx:    ctx,
		queue:  queue,
		module: module,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Binary enqueues op(a, b) and returns the output buffer. The result is
// only guaranteed complete after the queue is synchronized.
func (d *Dispatcher) Binary(op kernel.Op, a, b Operand) (Result, error) {
	if a.Buf.DType() != b.Buf.DType() {
		return Result{}, errors.Wrapf(ErrDTypeMismatch, "%s: %s vs %s", op, a.Buf.DType(), b.Buf.DType())
	}

	plan, err := shape.NewPlan(a.Shape, b.Shape)
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s", op)
	}

	v, err := kernel.Lookup(op, a.Buf.DType(), plan.Rank())
	if err != nil {
		return Result{}, err
	}
	k, err := d.module.Kernel(v.Name())
	if err != nil {
		return Result{}, err
	}

	n := plan.Out.Size()
	out, err := d.ctx.Alloc(v.OutDType(), n)
	if err != nil {
		return Result{}, err
	}

	res := Result{Buf: out, Shape: plan.Out, Variant: v}
	if n == 0 {
		return res, nil
	}

	cfg, err := d.geometry(k, n)
	if err != nil {
		d.release(out)
		return Result{}, err
	}
	res.Launch = cfg

	err = d.queue.Launch(k, cfg, accel.Args{
		A:   accel.Operand{Buf: a.Buf, Strides: plan.LHS},
		B:   accel.Operand{Buf: b.Buf, Strides: plan.RHS},
		Out: accel.Operand{Buf: out, Strides: plan.OutStrides},
	})
	if err != nil {
		d.release(out)
		return Result{}, err
	}

	d.logger.WithFields(logrus.Fields{
		"kernel": v.Name(),
		"shape":  plan.Out.String(),
		"grid":   cfg.Grid,
		"block":  cfg.Block,
	}).Debug("dispatch: launched")
	return res, nil
}

// geometry returns grid = ceil(n / block) for the effective block size.
// A kernel with a fixed block size ignores the override.
func (d *Dispatcher) geometry(k accel.Kernel, n int) (accel.LaunchConfig, error) {
	block := d.blockSize
	if fixed := k.FixedBlockSize(); fixed > 0 {
		block = fixed
	}
	if block <= 0 {
		var err error
		block, err = k.SuggestedBlockSize()
		if err != nil {
			return accel.LaunchConfig{}, errors.Wrap(accel.ErrKernelLaunch, err.Error())
		}
	}
	if block <= 0 {
		return accel.LaunchConfig{}, errors.Wrapf(accel.ErrKernelLaunch, "%s: block size %d", k.Variant(), block)
	}
	return accel.LaunchConfig{Grid: (n + block - 1) / block, Block: block}, nil
}

func (d *Dispatcher) release(buf accel.Buffer) {
	if err := d.queue.Free(buf); err != nil {
		d.logger.WithError(err).Warn("dispatch: free of unused output failed")
	}
}
