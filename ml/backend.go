// backend.go - Backend-Interface und Registrierung fuer ML-Modelle
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrUnsupportedBackend wird zurueckgegeben, wenn fuer ein Geraet kein Backend registriert ist
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Backend represents a model execution backend and owns the model parameters.
type Backend interface {
	// Close frees all memory associated with this backend
	Close()

	// Device describes the device the backend computes on
	Device() DeviceInfo

	// NewParameter allocates a zero-filled trainable tensor under name.
	// Names must be unique within a backend.
	NewParameter(name string, shape ...int) Tensor

	// Get returns the parameter registered under name or nil
	Get(name string) Tensor

	// Parameters returns all parameters sorted by name
	Parameters() []Parameter

	// Rand is the seeded random source used for parameter initialization.
	// It is not safe for concurrent use and must not be used once contexts
	// are running.
	Rand() *rand.Rand

	NewContext() Context
}

// Parameter is a named trainable tensor.
type Parameter struct {
	Name   string
	Tensor Tensor
}

// BackendParams controls how the backend is created
type BackendParams struct {
	// Device selects the backend library and device index, e.g. "cpu" or "cpu:0"
	Device string

	// Seed initializes the random source. Zero selects a random seed.
	Seed uint64

	// NumThreads limits the parallelism of the backend. Zero uses all CPUs.
	NumThreads int
}

var backends = make(map[string]func(BackendParams) (Backend, error))

// RegisterBackend registers a backend factory function for a device library.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance for the configured device.
func NewBackend(params BackendParams) (Backend, error) {
	library, _, err := ParseDevice(params.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedBackend, err)
	}

	if backend, ok := backends[library]; ok {
		return backend(params)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, params.Device)
}
