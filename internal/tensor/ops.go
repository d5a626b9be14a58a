package tensor

import (
	"runtime"

	"github.com/born-ml/gpubcast/internal/dispatch"
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/kernel"
	"github.com/pkg/errors"
)

// Add returns a + b with broadcasting.
func Add[T dtype.Float](a, b *Device[T]) (*Device[T], error) {
	return binary[T, T](kernel.Add, a, b)
}

// Sub returns a - b with broadcasting.
func Sub[T dtype.Float](a, b *Device[T]) (*Device[T], error) {
	return binary[T, T](kernel.Sub, a, b)
}

// Mul returns a * b with broadcasting.
func Mul[T dtype.Float](a, b *Device[T]) (*Device[T], error) {
	return binary[T, T](kernel.Mul, a, b)
}

// Div returns a / b with broadcasting. Division by zero follows IEEE-754.
func Div[T dtype.Float](a, b *Device[T]) (*Device[T], error) {
	return binary[T, T](kernel.Div, a, b)
}

// Equal returns the elementwise a == b as a bool tensor.
func Equal[T dtype.Element](a, b *Device[T]) (*Device[bool], error) {
	return binary[T, bool](kernel.Eq, a, b)
}

// And returns the elementwise logical and.
func And(a, b *Device[bool]) (*Device[bool], error) {
	return binary[bool, bool](kernel.And, a, b)
}

// Or returns the elementwise logical or.
func Or(a, b *Device[bool]) (*Device[bool], error) {
	return binary[bool, bool](kernel.Or, a, b)
}

// binary enqueues op and returns the output without waiting for it.
func binary[T, O dtype.Element](op kernel.Op, a, b *Device[T]) (*Device[O], error) {
	abuf, err := a.mem.buffer()
	if err != nil {
		return nil, err
	}
	bbuf, err := b.mem.buffer()
	if err != nil {
		return nil, err
	}
	eng := a.mem.eng
	if b.mem.eng != eng {
		return nil, ErrEngineMismatch
	}

	res, err := eng.Binary(op,
		dispatch.Operand{Buf: abuf, Shape: a.shape},
		dispatch.Operand{Buf: bbuf, Shape: b.shape},
	)
	runtime.KeepAlive(a.mem)
	runtime.KeepAlive(b.mem)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor: %s %s %s", a.shape, op.Symbol(), b.shape)
	}
	return newDevice[O](eng, res.Buf, res.Shape), nil
}
