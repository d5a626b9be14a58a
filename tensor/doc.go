// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides host and device tensors with NumPy-style
// broadcasting elementwise operations.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gpubcast/engine"
//	    "github.com/born-ml/gpubcast/shape"
//	    "github.com/born-ml/gpubcast/tensor"
//	)
//
//	func main() {
//	    eng, err := engine.Default()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    a, _ := tensor.Ones[float32](shape.Of(3, 1)).ToDevice(eng) // (3, 1)
//	    b, _ := tensor.Ones[float32](shape.Of(1, 4)).ToDevice(eng) // (1, 4)
//	    c, _ := tensor.Add(a, b)                                   // (3, 4)
//
//	    h, _ := c.ToHost() // waits for the queued work
//	    fmt.Println(h)
//	}
//
// # Supported Data Types
//
//   - float32, float64: Add, Sub, Mul, Div, Equal
//   - bool: Equal, And, Or
//
// Equal always yields a bool tensor.
//
// # Execution Model
//
// Device operations are enqueued on the engine's single FIFO queue and
// return immediately. ToHost and engine Synchronize wait for everything
// queued before them. A failed launch or device fault is reported there and
// every later call on the engine fails with the same error.
//
// # Memory Management
//
// A Device tensor exclusively owns its buffer. Call Release when done, or
// let the garbage collector free it. Release is ordered after all queued
// work that reads the buffer.
package tensor
