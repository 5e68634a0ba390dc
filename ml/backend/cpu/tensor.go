// tensor.go - Tensor-Struktur und Basis-Methoden des CPU-Backends
// Enthält: Dim, Shape, DType, Cast, Bytes, Floats, Ints, Gradienten-Zugriff

package cpu

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/x448/float16"
	G "gorgonia.org/gorgonia"

	"github.com/7blacky7/nmt/ml"
)

// Tensor ist ein row-major Tensor. F32- und F16-Werte liegen in data,
// I32-Werte in ints. Aufgezeichnete Ergebnisse haben einen Knoten im Graph
// ihres Contexts; data wird erst beim Lesen ausgewertet.
type Tensor struct {
	b    *Backend
	name string

	shape []int
	dtype ml.DType
	data  []float32
	ints  []int32

	requiresGrad bool
	grad         []float32

	c      *Context
	node   *G.Node
	inputs []*Tensor
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Dim gibt die Groesse der Dimension n zurueck
func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

// Shape gibt eine Kopie der Form zurueck
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// DType gibt den Datentyp zurueck
func (t *Tensor) DType() ml.DType {
	return t.dtype
}

// String gibt Name und Form fuer Log-Ausgaben zurueck
func (t *Tensor) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s%v", t.name, t.shape)
	}
	return fmt.Sprintf("%v%v", t.dtype, t.shape)
}

// Cast wandelt den Tensor in einen anderen Datentyp. F16 rundet die Werte auf
// halbe Genauigkeit, der Gradient wird unveraendert durchgereicht.
func (t *Tensor) Cast(ctx ml.Context, dtype ml.DType) ml.Tensor {
	if dtype == t.dtype {
		return t
	}

	c := ctx.(*Context)
	switch {
	case dtype == ml.DTypeI32:
		return &Tensor{b: t.b, shape: slices.Clone(t.shape), dtype: ml.DTypeI32, ints: t.Ints()}
	case t.dtype == ml.DTypeI32:
		return &Tensor{b: t.b, shape: slices.Clone(t.shape), dtype: dtype, data: roundTo(dtype, t.Floats())}
	default:
		// Die Rundung geht als konstante Differenz ein, der Gradient
		// fliesst unveraendert durch
		x := t.values()
		delta := roundTo(dtype, slices.Clone(x))
		for i := range delta {
			delta[i] -= x[i]
		}

		out := c.apply(t.shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
			return G.Must(G.Add(in[0], leaf(g, t.shape, delta)))
		}, t)
		out.dtype = dtype
		return out
	}
}

func roundTo(dtype ml.DType, data []float32) []float32 {
	if dtype == ml.DTypeF16 {
		for i, v := range data {
			data[i] = float16.Fromfloat32(v).Float32()
		}
	}
	return data
}

// Bytes gibt die Werte little-endian im eigenen Datentyp zurueck
func (t *Tensor) Bytes() []byte {
	switch t.dtype {
	case ml.DTypeI32:
		buf := make([]byte, 0, 4*len(t.ints))
		for _, v := range t.ints {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		}
		return buf
	case ml.DTypeF16:
		data := t.values()
		buf := make([]byte, 0, 2*len(data))
		for _, v := range data {
			buf = binary.LittleEndian.AppendUint16(buf, float16.Fromfloat32(v).Bits())
		}
		return buf
	default:
		data := t.values()
		buf := make([]byte, 0, 4*len(data))
		for _, v := range data {
			buf = binary.LittleEndian.AppendUint32(buf, math32.Float32bits(v))
		}
		return buf
	}
}

// Floats gibt eine Kopie der Werte als float32 zurueck
func (t *Tensor) Floats() []float32 {
	if t.dtype == ml.DTypeI32 {
		s := make([]float32, len(t.ints))
		for i, v := range t.ints {
			s[i] = float32(v)
		}
		return s
	}
	return slices.Clone(t.values())
}

// Ints gibt eine Kopie der Werte als int32 zurueck
func (t *Tensor) Ints() []int32 {
	if t.dtype != ml.DTypeI32 {
		data := t.values()
		s := make([]int32, len(data))
		for i, v := range data {
			s[i] = int32(v)
		}
		return s
	}
	return slices.Clone(t.ints)
}

// FromFloats ueberschreibt die Werte, ohne eine Operation aufzuzeichnen.
// Parameter teilen ihren Speicher mit den Blaettern aller Graphen, neue
// Werte sind dort sofort sichtbar.
func (t *Tensor) FromFloats(s []float32) {
	if len(s) != numel(t.shape) {
		panic(fmt.Sprintf("cpu: %d values do not fit shape %v", len(s), t.shape))
	}

	if t.dtype == ml.DTypeI32 {
		for i, v := range s {
			t.ints[i] = int32(v)
		}
		return
	}

	t.values()
	copy(t.data, roundTo(t.dtype, slices.Clone(s)))
}

// Grad gibt den akkumulierten Gradienten zurueck oder nil
func (t *Tensor) Grad() ml.Tensor {
	if t.grad == nil {
		return nil
	}
	return &Tensor{b: t.b, shape: slices.Clone(t.shape), dtype: ml.DTypeF32, data: slices.Clone(t.grad)}
}

// ZeroGrad verwirft den akkumulierten Gradienten
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// RequiresGrad gibt zurueck, ob t von einem Parameter abhaengt und
// aufgezeichnet wurde
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) f32() {
	if t.dtype == ml.DTypeI32 {
		panic(fmt.Sprintf("cpu: operation requires a float tensor, got %v", t))
	}
}

// values gibt die Werte von t zurueck und wertet aufgezeichnete Ergebnisse
// bei Bedarf aus
func (t *Tensor) values() []float32 {
	if t.node == nil {
		return t.data
	}
	return t.c.eval(t)
}
