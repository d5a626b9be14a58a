// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/gpubcast/internal/tensor"

// Add returns a + b with broadcasting.
func Add[T Float](a, b *Device[T]) (*Device[T], error) { return tensor.Add(a, b) }

// Sub returns a - b with broadcasting.
func Sub[T Float](a, b *Device[T]) (*Device[T], error) { return tensor.Sub(a, b) }

// Mul returns a * b with broadcasting.
func Mul[T Float](a, b *Device[T]) (*Device[T], error) { return tensor.Mul(a, b) }

// Div returns a / b with broadcasting.
func Div[T Float](a, b *Device[T]) (*Device[T], error) { return tensor.Div(a, b) }

// Equal returns a == b as a bool tensor.
func Equal[T Element](a, b *Device[T]) (*Device[bool], error) { return tensor.Equal(a, b) }

// And returns the elementwise logical and.
func And(a, b *Device[bool]) (*Device[bool], error) { return tensor.And(a, b) }

// Or returns the elementwise logical or.
func Or(a, b *Device[bool]) (*Device[bool], error) { return tensor.Or(a, b) }
