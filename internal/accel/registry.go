package accel

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options are passed to a backend when it is opened.
type Options struct {
	Device  int
	Workers int
	Logger  logrus.FieldLogger
}

// Backend describes a registered accelerator implementation.
type Backend struct {
	Name string
	// Priority orders automatic selection, higher first.
	Priority  int
	Available func() bool
	Open      func(opts Options) (Context, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register makes a backend available by name. It is called from the init
// functions of backend packages.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[b.Name]; dup {
		panic("accel: Register called twice for backend " + b.Name)
	}
	registry[b.Name] = b
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	if !ok {
		return Backend{}, errors.Wrapf(ErrUnavailable, "backend %q not registered", name)
	}
	return b, nil
}

// Backends returns all registered backends, highest priority first.
func Backends() []Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Backend, 0, len(registry))
	for _, b := range registry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}
