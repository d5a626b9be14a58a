package tensor

import (
	"runtime"
	"sync"

	"github.com/born-ml/gpubcast/internal/accel"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/engine"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/pkg/errors"
)

// ErrReleased is returned when using a released or moved device tensor.
var ErrReleased = errors.New("tensor: device tensor released")

// ErrEngineMismatch is returned when operands live on different engines.
var ErrEngineMismatch = errors.New("tensor: operands on different engines")

// Device is a tensor resident on an engine. It exclusively owns its buffer,
// which is freed by Release or when the tensor is garbage collected.
type Device[T dtype.Element] struct {
	shape shape.Shape
	mem   *deviceMemory
}

// deviceMemory carries the finalizer so that copies of the Device header
// share one buffer.
type deviceMemory struct {
	mu  sync.Mutex
	eng *engine.Engine
	buf accel.Buffer
}

func newDevice[T dtype.Element](eng *engine.Engine, buf accel.Buffer, s shape.Shape) *Device[T] {
	m := &deviceMemory{eng: eng, buf: buf}
	runtime.SetFinalizer(m, func(m *deviceMemory) {
		m.release()
	})
	return &Device[T]{shape: s.Clone(), mem: m}
}

func (m *deviceMemory) release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return nil
	}
	buf := m.buf
	m.buf = nil
	return m.eng.Free(buf)
}

func (m *deviceMemory) buffer() (accel.Buffer, error) {
	if m == nil {
		return nil, ErrReleased
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buf == nil {
		return nil, ErrReleased
	}
	return m.buf, nil
}

// ToDevice copies t into a new buffer on eng. The copy is enqueued and t
// may be modified once ToDevice returns.
func (t *Host[T]) ToDevice(eng *engine.Engine) (*Device[T], error) {
	if t.data == nil {
		return nil, ErrReleased
	}
	buf, err := eng.Upload(dtype.Of[T](), len(t.data), dtype.Bytes(t.data))
	if err != nil {
		return nil, err
	}
	return newDevice[T](eng, buf, t.shape), nil
}

// IntoDevice moves t to eng. On success t is left empty.
func (t *Host[T]) IntoDevice(eng *engine.Engine) (*Device[T], error) {
	d, err := t.ToDevice(eng)
	if err != nil {
		return nil, err
	}
	*t = Host[T]{}
	return d, nil
}

// Shape returns a copy of the tensor shape.
func (d *Device[T]) Shape() shape.Shape { return d.shape.Clone() }

// DType returns the element type tag.
func (d *Device[T]) DType() dtype.DataType { return dtype.Of[T]() }

// Len returns the number of elements.
func (d *Device[T]) Len() int { return d.shape.Size() }

// Engine returns the engine owning the buffer, or nil once moved.
func (d *Device[T]) Engine() *engine.Engine {
	if d.mem == nil {
		return nil
	}
	return d.mem.eng
}

// ToHost waits for all work queued before it and copies the buffer into
// a new host tensor.
func (d *Device[T]) ToHost() (*Host[T], error) {
	buf, err := d.mem.buffer()
	if err != nil {
		return nil, err
	}
	h := &Host[T]{shape: d.shape.Clone(), data: make([]T, d.shape.Size())}
	err = d.mem.eng.Download(dtype.Bytes(h.data), buf)
	runtime.KeepAlive(d.mem)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// IntoHost reads d back and releases its buffer.
func (d *Device[T]) IntoHost() (*Host[T], error) {
	h, err := d.ToHost()
	if err != nil {
		return nil, err
	}
	if err := d.Release(); err != nil {
		return nil, err
	}
	return h, nil
}

// Release frees the buffer after all queued work that reads it. Releasing
// twice is a no-op.
func (d *Device[T]) Release() error {
	if d.mem == nil {
		return nil
	}
	m := d.mem
	d.mem = nil
	runtime.SetFinalizer(m, nil)
	return m.release()
}
