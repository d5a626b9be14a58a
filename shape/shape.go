// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package shape describes tensor shapes and how two of them broadcast.
//
// Each axis is either Known, checked as soon as shapes meet, or Runtime,
// checked only when the operation runs:
//
//	a := shape.Of(3, 1)        // (3, 1)
//	b := shape.Dynamic(4)      // (?4)
//	c, err := shape.Broadcast(a, b)
//	// c == (3, ?4)
package shape

import "github.com/born-ml/gpubcast/internal/shape"

// MaxRank is the largest supported rank.
const MaxRank = shape.MaxRank

// Dim is the size of one axis.
type Dim = shape.Dim

// Shape is an ordered list of axes; the empty shape is a scalar.
type Shape = shape.Shape

// Plan is the broadcast layout of a binary operation.
type Plan = shape.Plan

// Errors returned by shape functions.
var (
	ErrShapeMismatch = shape.ErrShapeMismatch
	ErrInvalidShape  = shape.ErrInvalidShape
)

// Known returns a statically known axis size.
func Known(n int) Dim { return shape.Known(n) }

// Runtime returns an axis size known only at run time.
func Runtime(n int) Dim { return shape.Runtime(n) }

// Of returns a shape of Known axes.
func Of(sizes ...int) Shape { return shape.Of(sizes...) }

// Dynamic returns a shape of Runtime axes.
func Dynamic(sizes ...int) Shape { return shape.Dynamic(sizes...) }

// Scalar returns the rank-0 shape.
func Scalar() Shape { return shape.Scalar() }

// CheckStatic checks the Known axes of a and b for compatibility.
func CheckStatic(a, b Shape) error { return shape.CheckStatic(a, b) }

// Broadcast returns the broadcast shape of a and b.
func Broadcast(a, b Shape) (Shape, error) { return shape.Broadcast(a, b) }

// NewPlan returns the broadcast plan of a binary operation on a and b.
func NewPlan(a, b Shape) (Plan, error) { return shape.NewPlan(a, b) }
