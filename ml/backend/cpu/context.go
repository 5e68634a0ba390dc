// context.go - Compute-Context des CPU-Backends
// Enthält: Tensor-Erzeugung, Trainingsmodus, Gradienten-Modus, Ausdrucksgraph

package cpu

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	G "gorgonia.org/gorgonia"

	"github.com/7blacky7/nmt/ml"
)

// Context besitzt einen gorgonia-Ausdrucksgraph, in dem alle Operationen
// aufgezeichnet werden, solange Gradienten aktiviert sind. Ohne Gradienten
// wird jede Operation sofort in einem eigenen kleinen Graph ausgewertet.
type Context struct {
	b *Backend

	// mu schuetzt Graph, Blaetter und Zufallsquelle. Die RNN-Richtungen
	// bauen nebenlaeufig in denselben Graph.
	mu     sync.Mutex
	g      *G.ExprGraph
	leaves map[*Tensor]*G.Node
	rng    *rand.Rand

	training bool
	grad     bool
	closed   bool
}

// Zeros erstellt einen mit Nullen gefuellten Tensor
func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	t := &Tensor{b: c.b, shape: slices.Clone(shape), dtype: dtype}
	switch dtype {
	case ml.DTypeI32:
		t.ints = make([]int32, numel(shape))
	case ml.DTypeF32, ml.DTypeF16:
		t.data = make([]float32, numel(shape))
	default:
		panic(fmt.Sprintf("cpu: unsupported dtype %v", dtype))
	}

	return t
}

// FromFloats erstellt einen F32-Tensor aus einer Kopie von s
func (c *Context) FromFloats(s []float32, shape ...int) ml.Tensor {
	if len(s) != numel(shape) {
		panic(fmt.Sprintf("cpu: %d values do not fit shape %v", len(s), shape))
	}

	return &Tensor{b: c.b, shape: slices.Clone(shape), dtype: ml.DTypeF32, data: slices.Clone(s)}
}

// FromInts erstellt einen I32-Tensor aus einer Kopie von s
func (c *Context) FromInts(s []int32, shape ...int) ml.Tensor {
	if len(s) != numel(shape) {
		panic(fmt.Sprintf("cpu: %d values do not fit shape %v", len(s), shape))
	}

	return &Tensor{b: c.b, shape: slices.Clone(shape), dtype: ml.DTypeI32, ints: slices.Clone(s)}
}

// Training gibt zurueck, ob Dropout aktiv ist
func (c *Context) Training() bool {
	return c.training
}

// SetTraining setzt den Trainingsmodus
func (c *Context) SetTraining(training bool) ml.Context {
	c.training = training
	return c
}

// GradEnabled gibt zurueck, ob Operationen fuer Backward aufgezeichnet werden
func (c *Context) GradEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grad
}

// SetGradEnabled schaltet die Aufzeichnung um. Bereits aufgezeichnete
// Tensoren bleiben auswertbar.
func (c *Context) SetGradEnabled(enabled bool) ml.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grad = enabled
	return c
}

// mask zieht eine Dropout-Maske: scale mit Wahrscheinlichkeit 1-p, sonst 0
func (c *Context) mask(n int, p, scale float32) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := make([]float32, n)
	for i := range m {
		if c.rng.Float32() >= p {
			m[i] = scale
		}
	}
	return m
}

// Close verwirft den Ausdrucksgraph. Nicht ausgewertete Ergebnisse sind
// danach nicht mehr lesbar.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.g = nil
	c.leaves = nil
	c.closed = true
}
