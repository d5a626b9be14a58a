package host

import (
	"context"
	"slices"
	"sync"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/parallel"
	"github.com/pkg/errors"
)

const queueDepth = 64

type command struct {
	run   func() error
	fence chan struct{}
}

// Queue is the in-order host stream.
type Queue struct {
	ctx   *Context
	fault accel.Fault

	mu       sync.RWMutex
	released bool
	cmds     chan command
	done     chan struct{}
}

func newQueue(c *Context) *Queue {
	q := &Queue{
		ctx:  c,
		cmds: make(chan command, queueDepth),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for cmd := range q.cmds {
		if cmd.fence != nil {
			close(cmd.fence)
			continue
		}
		if q.fault.Err() != nil {
			continue
		}
		if err := cmd.run(); err != nil {
			q.poison(err)
		}
	}
}

func (q *Queue) poison(err error) {
	if q.fault.Set(err) {
		q.ctx.logger.WithError(err).Error("host: queue poisoned")
	}
}

func (q *Queue) submit(cmd command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.released {
		return accel.ErrReleased
	}
	if err := q.fault.Err(); err != nil {
		return err
	}
	q.cmds <- cmd
	return nil
}

// Upload implements accel.Queue. src is copied before Upload returns.
func (q *Queue) Upload(dst accel.Buffer, src []byte) error {
	buf, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if size := buf.n * buf.dt.Size(); len(src) != size {
		return errors.Errorf("host: upload of %d bytes into %d-byte buffer", len(src), size)
	}
	staged := slices.Clone(src)
	return q.submit(command{run: func() error {
		if buf.data == nil {
			return errors.Wrap(accel.ErrDeviceExecution, "host: upload into freed buffer")
		}
		copy(buf.data, staged)
		return nil
	}})
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
	if buf.data == nil {
		return errors.Wrap(accel.ErrDeviceExecution, "host: download from freed buffer")
	}
	if len(dst) != len(buf.data) {
		return errors.Errorf("host: download of %d-byte buffer into %d bytes", len(buf.data), len(dst))
	}
	copy(dst, buf.data)
	return nil
}

// Launch implements accel.Queue. Invalid configurations are reported
// immediately and also poison the queue.
func (q *Queue) Launch(k accel.Kernel, cfg accel.LaunchConfig, args accel.Args) error {
	hk, ok := k.(*Kernel)
	if !ok {
		return errors.Wrapf(accel.ErrKernelLaunch, "host: foreign kernel %T", k)
	}
	name := hk.variant.Name()
	if err := accel.CheckArgs(k, args); err != nil {
		q.poison(err)
		return err
	}
	if err := accel.CheckLaunch(name, cfg, args.Out.Buf.Len()); err != nil {
		q.poison(err)
		return err
	}

	var bufs [3]*Buffer
	for i, op := range []accel.Operand{args.A, args.B, args.Out} {
		hb, err := asBuffer(op.Buf)
		if err != nil {
			return errors.Wrap(accel.ErrKernelLaunch, err.Error())
		}
		bufs[i] = hb
	}
	a, b, out := bufs[0], bufs[1], bufs[2]

	as := slices.Clone(args.A.Strides)
	bs := slices.Clone(args.B.Strides)
	outStrides := slices.Clone(args.Out.Strides)

	return q.submit(command{run: func() error {
		err := parallel.Grid(context.Background(), cfg.Grid, cfg.Block, func(lo, hi int) error {
			hk.body(a.data, b.data, out.data, as, bs, outStrides, lo, hi)
			return nil
		}, q.ctx.workers)
		if err != nil {
			return errors.Wrapf(accel.ErrDeviceExecution, "host: %s: %v", name, err)
		}
		return nil
	}})
}

// Free implements accel.Queue.
func (q *Queue) Free(buf accel.Buffer) error {
	hb, err := asBuffer(buf)
	if err != nil {
		return err
	}
	return q.submit(command{run: func() error {
		hb.data = nil
		return nil
	}})
}

// Synchronize implements accel.Queue.
func (q *Queue) Synchronize() error {
	fence := make(chan struct{})
	q.mu.RLock()
	if q.released {
		q.mu.RUnlock()
		return accel.ErrReleased
	}
	q.cmds <- command{fence: fence}
	q.mu.RUnlock()

	<-fence
	return q.fault.Err()
}

// Release implements accel.Queue. Pending work is drained first.
func (q *Queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return nil
	}
	q.released = true
	close(q.cmds)
	q.mu.Unlock()

	<-q.done
	return nil
}
