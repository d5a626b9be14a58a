// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gpubcast/internal/dtype"
	"github.com/born-ml/gpubcast/internal/engine"
	"github.com/born-ml/gpubcast/internal/shape"
	"github.com/born-ml/gpubcast/internal/tensor"
)

// Element is the constraint for supported element types.
type Element = dtype.Element

// Float is the constraint for floating point element types.
type Float = dtype.Float

// DataType is the runtime tag of an element type.
type DataType = dtype.DataType

// Data type constants.
const (
	Bool    DataType = dtype.Bool
	Float32 DataType = dtype.Float32
	Float64 DataType = dtype.Float64
)

// Host is a row-major tensor in host memory.
type Host[T Element] = tensor.Host[T]

// Device is a tensor resident on an engine.
type Device[T Element] = tensor.Device[T]

// Errors returned by device tensors.
var (
	ErrReleased       = tensor.ErrReleased
	ErrEngineMismatch = tensor.ErrEngineMismatch
)

// Zeros returns a host tensor of zero values. It panics on an invalid shape.
func Zeros[T Element](s shape.Shape) *Host[T] { return tensor.Zeros[T](s) }

// Ones returns a host tensor of ones (true for bool).
func Ones[T Element](s shape.Shape) *Host[T] { return tensor.Ones[T](s) }

// Full returns a host tensor with every element set to v.
func Full[T Element](s shape.Shape, v T) *Host[T] { return tensor.Full(s, v) }

// FromSlice copies data into a new host tensor of shape s.
func FromSlice[T Element](data []T, s shape.Shape) (*Host[T], error) {
	return tensor.FromSlice(data, s)
}

// ToDevice copies h to eng.
func ToDevice[T Element](h *Host[T], eng *engine.Engine) (*Device[T], error) {
	return h.ToDevice(eng)
}
