// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend reports the accelerator backends compiled into this
// binary and whether they can run on this machine.
//
// Backends:
//   - cuda: NVIDIA GPUs via the CUDA driver API (Linux, no cgo)
//   - webgpu: GPUs via wgpu-native (Windows, no cgo)
//   - host: CPU fallback, always available
package backend

import (
	"github.com/born-ml/gpubcast/internal/accel"
	_ "github.com/born-ml/gpubcast/internal/engine" // registers backends
)

// Info describes a registered backend.
type Info struct {
	Name      string
	Priority  int
	Available bool
}

// List returns all registered backends, highest priority first.
func List() []Info {
	backends := accel.Backends()
	out := make([]Info, len(backends))
	for i, b := range backends {
		out[i] = Info{Name: b.Name, Priority: b.Priority, Available: b.Available()}
	}
	return out
}

// IsAvailable reports whether the named backend can be opened here.
func IsAvailable(name string) bool {
	b, err := accel.Lookup(name)
	return err == nil && b.Available()
}
