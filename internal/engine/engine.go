// Package engine owns one accelerator context together with its shared
// queue, the loaded kernel module and the dispatcher.
//
// Every tensor created on an Engine enqueues its copies and launches on
// the same FIFO queue, so results are ordered without explicit events.
// A process-wide engine is created lazily by Default.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/config"
	"github.com/born-ml/gpubcast/internal/dispatch"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Engine is an open accelerator with its shared queue.
type Engine struct {
	cfg    config.Config
	ctx    accel.Context
	queue  accel.Queue
	module accel.Module
	disp   *dispatch.Dispatcher
	logger logrus.FieldLogger

	stats  counters
	closed atomic.Bool
	// closeMu is read-held by every call and write-held by Close.
	closeMu sync.RWMutex
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger logrus.FieldLogger
}

// WithLogger routes engine and backend logs to l instead of a logger
// built from the configured level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// Open selects the configured backend, creates its queue and loads the
// full kernel set.
func Open(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		lvl, _ := cfg.Level()
		l := logrus.New()
		l.SetLevel(lvl)
		o.logger = l
	}

	backend, err := Select(cfg.Backend)
	if err != nil {
		return nil, err
	}
	ctx, err := backend.Open(accel.Options{
		Device:  cfg.Device,
		Workers: cfg.Workers,
		Logger:  o.logger,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "engine: open %s", backend.Name)
	}

	queue, err := ctx.CreateQueue()
	if err != nil {
		releaseQuietly(o.logger, ctx.Release)
		return nil, errors.Wrap(err, "engine: create queue")
	}
	module, err := ctx.LoadModule(kernel.Variants())
	if err != nil {
		releaseQuietly(o.logger, queue.Release)
		releaseQuietly(o.logger, ctx.Release)
		return nil, errors.Wrap(err, "engine: load kernels")
	}

	e := &Engine{
		cfg:    cfg,
		ctx:    ctx,
		queue:  queue,
		module: module,
		logger: o.logger,
	}
	e.disp = dispatch.New(ctx, queue, module,
		dispatch.WithBlockSize(cfg.BlockSize),
		dispatch.WithLogger(o.logger),
	)
	o.logger.WithFields(logrus.Fields{
		"backend": ctx.Name(),
		"device":  ctx.Device(),
	}).Info("engine: opened")
	return e, nil
}

// Select resolves a backend name. "auto" picks the highest priority
// backend that is available on this machine.
func Select(name string) (accel.Backend, error) {
	if name == "" || name == config.BackendAuto {
		for _, b := range accel.Backends() {
			if b.Available() {
				return b, nil
			}
		}
		return accel.Backend{}, errors.Wrap(accel.ErrUnavailable, "engine: no backend available")
	}
	b, err := accel.Lookup(name)
	if err != nil {
		return accel.Backend{}, err
	}
	if !b.Available() {
		return accel.Backend{}, errors.Wrapf(accel.ErrUnavailable, "engine: %s", name)
	}
	return b, nil
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
	defaultErr    error
)

// Default returns the process-wide engine, opening it on first use from
// the environment configuration. The engine lives until the process ends.
func Default() (*Engine, error) {
	defaultOnce.Do(func() {
		cfg, err := config.FromEnv()
		if err != nil {
			defaultErr = err
			return
		}
		defaultEngine, defaultErr = Open(cfg)
	})
	return defaultEngine, defaultErr
}

// Backend returns the name of the selected backend.
func (e *Engine) Backend() string { return e.ctx.Name() }

// Device describes the selected device.
func (e *Engine) Device() string { return e.ctx.Device() }

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() config.Config { return e.cfg }

// Logger returns the engine logger.
func (e *Engine) Logger() logrus.FieldLogger { return e.logger }

func (e *Engine) enter() error {
	e.closeMu.RLock()
	if e.closed.Load() {
		e.closeMu.RUnlock()
		return accel.ErrReleased
	}
	return nil
}

func (e *Engine) leave() { e.closeMu.RUnlock() }

// Upload allocates a buffer of n elements and enqueues a copy of src
// into it. src may be reused once Upload returns.
func (e *Engine) Upload(dt dtype.DataType, n int, src []byte) (accel.Buffer, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	buf, err := e.ctx.Alloc(dt, n)
	if err != nil {
		return nil, err
	}
	e.stats.live.Add(1)
	if len(src) == 0 {
		return buf, nil
	}
	if err := e.queue.Upload(buf, src); err != nil {
		e.free(buf)
		return nil, err
	}
	e.stats.uploaded.Add(uint64(len(src)))
	return buf, nil
}

// Download waits for all queued work and copies src into dst.
func (e *Engine) Download(dst []byte, src accel.Buffer) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if len(dst) == 0 {
		return e.queue.Synchronize()
	}
	if err := e.queue.Download(dst, src); err != nil {
		return err
	}
	e.stats.downloaded.Add(uint64(len(dst)))
	return nil
}

// Binary enqueues op over two device operands.
func (e *Engine) Binary(op kernel.Op, a, b dispatch.Operand) (dispatch.Result, error) {
	if err := e.enter(); err != nil {
		return dispatch.Result{}, err
	}
	defer e.leave()

	res, err := e.disp.Binary(op, a, b)
	if err != nil {
		return dispatch.Result{}, err
	}
	e.stats.live.Add(1)
	if res.Launch.Grid > 0 {
		e.stats.launches.Add(1)
	}
	return res, nil
}

// Free releases buf after all work queued so far.
func (e *Engine) Free(buf accel.Buffer) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	return e.free(buf)
}

// free drops buf from the live count unless the queue refused it as foreign.
// A buffer the queue could not release on a fault is lost all the same.
func (e *Engine) free(buf accel.Buffer) error {
	err := e.queue.Free(buf)
	if errors.Is(err, accel.ErrForeignBuffer) {
		return err
	}
	e.stats.live.Add(-1)
	return err
}

// Synchronize waits for all queued work and returns the queue fault.
func (e *Engine) Synchronize() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()
	return e.queue.Synchronize()
}

// Close drains the queue and releases the module, queue and context.
// Tensors still referencing the engine fail with accel.ErrReleased.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed.Swap(true) {
		return nil
	}

	syncErr := e.queue.Synchronize()
	var firstErr error
	for _, release := range []func() error{e.module.Release, e.queue.Release, e.ctx.Release} {
		if err := release(); err != nil {
			e.logger.WithError(err).Warn("engine: release failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	e.logger.WithFields(logrus.Fields{
		"backend":  e.ctx.Name(),
		"launches": e.stats.launches.Load(),
	}).Info("engine: closed")

	if firstErr != nil {
		return firstErr
	}
	return syncErr
}

func releaseQuietly(logger logrus.FieldLogger, release func() error) {
	if err := release(); err != nil {
		logger.WithError(err).Warn("engine: release failed")
	}
}
