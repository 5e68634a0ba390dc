// graph.go - Aufzeichnung, Auswertung und Ableitung ueber gorgonia
//
// Jede Operation beschreibt ihr Ergebnis als gorgonia-Knoten ueber den
// Knoten ihrer Eingaben. Haengt eine Eingabe von einem Parameter ab und
// sind Gradienten aktiviert, wird der Knoten im Graph des Contexts
// aufgezeichnet und erst beim Lesen von einer TapeMachine ausgewertet.
// Sonst wird er sofort in einem eigenen Graph berechnet.
//
// Indexoperationen (Slice, Concat, Stack, Rows, Broadcasting und Sum)
// sind Matrixprodukte mit konstanten Auswahlmatrizen. Ihre Ableitung
// liefert gorgonia ohne eigene Regeln.

package cpu

import (
	"fmt"
	"slices"
	"sync/atomic"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/7blacky7/nmt/logutil"
	"github.com/7blacky7/nmt/ml"
)

// builder erzeugt den Knoten einer Operation aus den Knoten ihrer Eingaben
type builder func(g *G.ExprGraph, in ...*G.Node) *G.Node

// seq vergibt eindeutige Knotennamen. gorgonia fasst gleich benannte
// Blaetter mit gleichem Typ zu einem Knoten zusammen.
var seq atomic.Uint64

// leaf legt einen Eingabeknoten mit festem Wert an. data wird nicht kopiert.
func leaf(g *G.ExprGraph, shape []int, data []float32) *G.Node {
	name := fmt.Sprintf("x%d", seq.Add(1))
	if len(shape) == 0 {
		return G.NewScalar(g, tensor.Float32, G.WithValue(data[0]), G.WithName(name))
	}

	v := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return G.NewTensor(g, tensor.Float32, len(shape), G.WithShape(shape...), G.WithValue(v), G.WithName(name))
}

func filled(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// apply erzeugt das Ergebnis der Operation build mit der Form shape
func (c *Context) apply(shape []int, build builder, inputs ...*Tensor) *Tensor {
	out := &Tensor{b: c.b, shape: slices.Clone(shape), dtype: ml.DTypeF32}

	c.mu.Lock()
	record := c.grad && !c.closed && slices.ContainsFunc(inputs, (*Tensor).RequiresGrad)
	c.mu.Unlock()

	if !record {
		g := G.NewGraph()
		nodes := make([]*G.Node, len(inputs))
		for i, in := range inputs {
			nodes[i] = leaf(g, in.shape, slices.Clone(in.values()))
		}

		out.data = run(g, build(g, nodes...))
		return out
	}

	// Eingaben fremder Contexts werden vor dem Sperren ausgewertet
	for _, in := range inputs {
		if in.c != c {
			in.values()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.g == nil {
		c.g = G.NewGraph()
	}

	nodes := make([]*G.Node, len(inputs))
	for i, in := range inputs {
		nodes[i] = c.nodeOf(in)
	}

	out.c = c
	out.node = build(c.g, nodes...)
	out.inputs = inputs
	out.requiresGrad = true
	return out
}

// nodeOf gibt den Knoten von t im Graph des Contexts zurueck. Tensoren
// ohne eigenen Knoten werden einmalig als Blatt eingetragen. c.mu muss
// gehalten werden.
func (c *Context) nodeOf(t *Tensor) *G.Node {
	if t.node != nil && t.c == c {
		return t.node
	}

	if n, ok := c.leaves[t]; ok {
		return n
	}

	data := t.data
	if t.name == "" {
		data = slices.Clone(data)
	}

	n := leaf(c.g, t.shape, data)
	c.leaves[t] = n
	return n
}

// eval wertet den aufgezeichneten Tensor t einmalig aus
func (c *Context) eval(t *Tensor) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.data == nil {
		if c.g == nil {
			panic(fmt.Sprintf("cpu: %v read after its context was closed", t))
		}
		t.data = run(c.g.SubgraphRoots(t.node), t.node)
	}

	return t.data
}

// run fuehrt g auf einer TapeMachine aus und gibt den Wert von n zurueck
func run(g *G.ExprGraph, n *G.Node) []float32 {
	m := G.NewTapeMachine(g)
	defer m.Close()

	if err := m.RunAll(); err != nil {
		panic(fmt.Sprintf("cpu: %v", err))
	}

	return floatsOf(n.Value())
}

func floatsOf(v G.Value) []float32 {
	var data any
	switch v := v.(type) {
	case *tensor.Dense:
		data = v.Materialize().Data()
	default:
		data = v.Data()
	}

	switch data := data.(type) {
	case []float32:
		return slices.Clone(data)
	case float32:
		return []float32{data}
	default:
		panic(fmt.Sprintf("cpu: unexpected value type %T", data))
	}
}

// splitAt zerlegt die Form um Dimension dim in outer, n und inner
func splitAt(shape []int, dim int) (outer, n, inner int) {
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("cpu: dimension %d out of range for shape %v", dim, shape))
	}
	return numel(shape[:dim]), shape[dim], numel(shape[dim+1:])
}

// toLast formt x in eine Matrix (outer·inner, n), deren Spalten Dimension dim sind
func toLast(x *G.Node, shape []int, dim int) *G.Node {
	outer, n, inner := splitAt(shape, dim)
	if inner == 1 {
		return G.Must(G.Reshape(x, tensor.Shape{outer, n}))
	}

	x = G.Must(G.Reshape(x, tensor.Shape{outer, n, inner}))
	x = G.Must(G.Transpose(x, 0, 2, 1))
	return G.Must(G.Reshape(x, tensor.Shape{outer * inner, n}))
}

// fromLast kehrt toLast fuer eine Matrix (outer·inner, shape[dim]) um
func fromLast(x *G.Node, shape []int, dim int) *G.Node {
	outer, m, inner := splitAt(shape, dim)
	if inner != 1 {
		x = G.Must(G.Reshape(x, tensor.Shape{outer, inner, m}))
		x = G.Must(G.Transpose(x, 0, 2, 1))
	}
	return G.Must(G.Reshape(x, tensor.Shape(slices.Clone(shape))))
}

// along multipliziert Dimension dim von x mit der Auswahlmatrix sel (n, m)
func along(g *G.ExprGraph, x *G.Node, shape []int, dim, m int, sel []float32) *G.Node {
	out := slices.Clone(shape)
	out[dim] = m

	y := G.Must(G.Mul(toLast(x, shape, dim), leaf(g, []int{shape[dim], m}, sel)))
	return fromLast(y, out, dim)
}

// placement bildet n Positionen auf die Positionen off..off+n-1 von m ab
func placement(n, m, off int) []float32 {
	sel := make([]float32, n*m)
	for j := range n {
		sel[j*m+off+j] = 1
	}
	return sel
}

// broadcastTo erweitert x von der Form from auf die Form to
func broadcastTo(g *G.ExprGraph, x *G.Node, from, to []int) *G.Node {
	if slices.Equal(from, to) {
		return x
	}

	shape := make([]int, len(to))
	for i := range shape {
		shape[i] = 1
		if j := i - (len(to) - len(from)); j >= 0 {
			shape[i] = from[j]
		}
	}

	if !slices.Equal(shape, from) {
		x = G.Must(G.Reshape(x, tensor.Shape(slices.Clone(shape))))
	}

	for d := range to {
		if shape[d] == 1 && to[d] != 1 {
			x = along(g, x, shape, d, to[d], filled(to[d], 1))
			shape[d] = to[d]
		}
	}

	return x
}

// accumulate addiert g auf den Gradienten von t
func (t *Tensor) accumulate(g []float32) {
	if t.grad == nil {
		t.grad = make([]float32, len(g))
	}

	for i, v := range g {
		t.grad[i] += v
	}
}

// parameters sammelt die Parameter, von denen root innerhalb seines
// Contexts abhaengt
func parameters(root *Tensor) []*Tensor {
	var params []*Tensor
	seen := map[*Tensor]bool{root: true}
	stack := []*Tensor{root}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, in := range t.inputs {
			if seen[in] {
				continue
			}
			seen[in] = true

			switch {
			case in.node != nil && in.c == root.c:
				stack = append(stack, in)
			case in.node == nil && in.requiresGrad:
				params = append(params, in)
			}
		}
	}

	return params
}

// Backward berechnet die Gradienten aller Parameter, von denen t abhaengt,
// mit gorgonia.Grad. Gradienten von Parametern werden akkumuliert, bis
// ZeroGrad aufgerufen wird.
func (c *Context) Backward(t ml.Tensor) {
	root := t.(*Tensor)
	if root.node == nil {
		return
	}

	if root.c != c {
		root.c.Backward(root)
		return
	}

	params := parameters(root)
	if len(params) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.g == nil {
		panic("cpu: backward after context was closed")
	}

	wrt := make([]*G.Node, len(params))
	for i, p := range params {
		wrt[i] = c.leaves[p]
	}

	cost := root.node
	if !cost.IsScalar() {
		cost = G.Must(G.Sum(cost))
	}

	grads, err := G.Grad(cost, wrt...)
	if err != nil {
		panic(fmt.Sprintf("cpu: %v", err))
	}

	m := G.NewTapeMachine(c.g.SubgraphRoots(grads...))
	defer m.Close()

	if err := m.RunAll(); err != nil {
		panic(fmt.Sprintf("cpu: %v", err))
	}

	for i, p := range params {
		p.accumulate(floatsOf(grads[i].Value()))
	}

	logutil.Trace("backward", "parameters", len(params))
}
