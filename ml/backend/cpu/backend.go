// backend.go - CPU-Backend fuer float32-Tensoren
//
// Dieses Modul enthaelt:
// - Backend: Haelt benannte Parameter und die Zufallsquelle
// - New: Factory, registriert als "cpu"
//
// Die Operationen werden als gorgonia-Ausdrucksgraph aufgezeichnet und
// von einer TapeMachine ausgewertet. Matrixprodukte rechnet gorgonia mit
// der nativen BLAS-Implementierung von gonum.
package cpu

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	xcpu "golang.org/x/sys/cpu"
	"gonum.org/v1/gonum/blas/gonum"
	G "gorgonia.org/gorgonia"

	"github.com/7blacky7/nmt/logutil"
	"github.com/7blacky7/nmt/ml"
)

func init() {
	G.Use(gonum.Implementation{})
	ml.RegisterBackend("cpu", New)
}

// Backend implementiert ml.Backend auf dem Hauptspeicher
type Backend struct {
	device ml.DeviceInfo

	mu      sync.Mutex
	tensors map[string]*Tensor
	rng     *rand.Rand
}

// New erstellt ein CPU-Backend
func New(params ml.BackendParams) (ml.Backend, error) {
	library, id, err := ml.ParseDevice(params.Device)
	if err != nil {
		return nil, err
	}

	if library != "cpu" {
		return nil, fmt.Errorf("%w: %s", ml.ErrUnsupportedBackend, params.Device)
	}

	threads := params.NumThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	seed := params.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	b := &Backend{
		device: ml.DeviceInfo{
			Library:     "cpu",
			ID:          id,
			Name:        "CPU",
			Description: strings.Join(append([]string{runtime.GOOS + "/" + runtime.GOARCH, "gorgonia"}, features()...), " "),
			ThreadCount: threads,
		},
		tensors: make(map[string]*Tensor),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}

	slog.Debug("backend created", "device", b.device, "seed", seed)
	return b, nil
}

// features listet die SIMD-Erweiterungen des Prozessors
func features() []string {
	var fs []string
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"avx", xcpu.X86.HasAVX},
		{"avx2", xcpu.X86.HasAVX2},
		{"avx512f", xcpu.X86.HasAVX512F},
		{"fma", xcpu.X86.HasFMA},
		{"neon", xcpu.ARM64.HasASIMD},
	} {
		if f.ok {
			fs = append(fs, f.name)
		}
	}
	return fs
}

// Close gibt alle Parameter frei
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.tensors)
}

// Device gibt die Geraete-Informationen zurueck
func (b *Backend) Device() ml.DeviceInfo {
	return b.device
}

// NewParameter legt einen trainierbaren, mit Nullen gefuellten Tensor an
func (b *Backend) NewParameter(name string, shape ...int) ml.Tensor {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tensors[name]; ok {
		panic(fmt.Sprintf("cpu: parameter %q already exists", name))
	}

	t := &Tensor{
		b:            b,
		name:         name,
		shape:        slices.Clone(shape),
		dtype:        ml.DTypeF32,
		data:         make([]float32, numel(shape)),
		requiresGrad: true,
	}

	b.tensors[name] = t
	logutil.Trace("parameter allocated", "name", name, "shape", shape)
	return t
}

// Get gibt den Parameter mit dem Namen name zurueck
func (b *Backend) Get(name string) ml.Tensor {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.tensors[name]; ok {
		return t
	}

	return nil
}

// Parameters gibt alle Parameter sortiert nach Namen zurueck
func (b *Backend) Parameters() []ml.Parameter {
	b.mu.Lock()
	defer b.mu.Unlock()

	params := make([]ml.Parameter, 0, len(b.tensors))
	for name, t := range b.tensors {
		params = append(params, ml.Parameter{Name: name, Tensor: t})
	}

	slices.SortFunc(params, func(a, b ml.Parameter) int {
		return strings.Compare(a.Name, b.Name)
	})

	return params
}

// Rand gibt die Zufallsquelle fuer die Initialisierung zurueck. Sie ist
// nicht nebenlaeufig nutzbar; Contexte ziehen ihre Seeds unter b.mu.
func (b *Backend) Rand() *rand.Rand {
	return b.rng
}

// NewContext erstellt einen Context im Inferenz-Modus mit aktivierten Gradienten
func (b *Backend) NewContext() ml.Context {
	b.mu.Lock()
	seed := b.rng.Uint64()
	b.mu.Unlock()

	return &Context{
		b:      b,
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		grad:   true,
		leaves: make(map[*Tensor]*G.Node),
	}
}
