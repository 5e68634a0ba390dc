// tensor_shape.go - Form-Operationen
// Enthält: Reshape, Concat, Stack, Slice, Rows
//
// Bis auf Reshape werden alle Operationen ueber along als Produkt mit einer
// Auswahlmatrix gebildet.

package cpu

import (
	"fmt"
	"slices"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/7blacky7/nmt/ml"
)

// empty gibt einen Tensor ohne Elemente zurueck
func (t *Tensor) empty(shape []int) *Tensor {
	return &Tensor{b: t.b, shape: shape, dtype: ml.DTypeF32, data: []float32{}}
}

// Reshape aendert die Form bei gleicher Elementanzahl. Eine Dimension darf -1 sein.
func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	n := numel(t.shape)
	shape = slices.Clone(shape)
	if i := slices.Index(shape, -1); i >= 0 {
		shape[i] = 1
		shape[i] = n / numel(shape)
	}

	if numel(shape) != n {
		panic(fmt.Sprintf("cpu: cannot reshape %v to %v", t.shape, shape))
	}

	return c.apply(shape, func(_ *G.ExprGraph, in ...*G.Node) *G.Node {
		return G.Must(G.Reshape(in[0], tensor.Shape(slices.Clone(shape))))
	}, t)
}

// Concat verbindet t und t2 entlang Dimension dim
func (t *Tensor) Concat(ctx ml.Context, t2 ml.Tensor, dim int) ml.Tensor {
	c := ctx.(*Context)
	u := t2.(*Tensor)
	t.f32()
	u.f32()

	if len(t.shape) != len(u.shape) {
		panic(fmt.Sprintf("cpu: cannot concat %v and %v", t.shape, u.shape))
	}
	for d := range t.shape {
		if d != dim && t.shape[d] != u.shape[d] {
			panic(fmt.Sprintf("cpu: cannot concat %v and %v along %d", t.shape, u.shape, dim))
		}
	}

	_, na, _ := splitAt(t.shape, dim)
	nb := u.shape[dim]
	switch {
	case nb == 0:
		return t
	case na == 0:
		return u
	}

	shape := slices.Clone(t.shape)
	shape[dim] = na + nb

	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		a := along(g, in[0], t.shape, dim, na+nb, placement(na, na+nb, 0))
		b := along(g, in[1], u.shape, dim, na+nb, placement(nb, na+nb, na))
		return G.Must(G.Add(a, b))
	}, t, u)
}

// Stack stapelt t und s entlang einer neuen Dimension dim
func (t *Tensor) Stack(ctx ml.Context, dim int, s ...ml.Tensor) ml.Tensor {
	c := ctx.(*Context)

	srcs := []*Tensor{t}
	for _, o := range s {
		srcs = append(srcs, o.(*Tensor))
	}

	for _, src := range srcs {
		src.f32()
		if !slices.Equal(src.shape, t.shape) {
			panic(fmt.Sprintf("cpu: cannot stack %v and %v", t.shape, src.shape))
		}
	}

	if dim < 0 || dim > len(t.shape) {
		panic(fmt.Sprintf("cpu: dimension %d out of range for stack of %v", dim, t.shape))
	}

	k := len(srcs)
	shape := slices.Insert(slices.Clone(t.shape), dim, k)
	single := slices.Insert(slices.Clone(t.shape), dim, 1)

	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		var out *G.Node
		for i, n := range in {
			n = G.Must(G.Reshape(n, tensor.Shape(slices.Clone(single))))
			n = along(g, n, single, dim, k, placement(1, k, i))
			if out == nil {
				out = n
			} else {
				out = G.Must(G.Add(out, n))
			}
		}
		return out
	}, srcs...)
}

// Slice schneidet [low, high) mit Schrittweite step aus Dimension dim
func (t *Tensor) Slice(ctx ml.Context, dim, low, high, step int) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	_, n, _ := splitAt(t.shape, dim)
	if low < 0 || high > n || low > high || step <= 0 {
		panic(fmt.Sprintf("cpu: invalid slice [%d:%d:%d] of dimension %d in %v", low, high, step, dim, t.shape))
	}

	var picked []int
	for j := low; j < high; j += step {
		picked = append(picked, j)
	}

	shape := slices.Clone(t.shape)
	shape[dim] = len(picked)
	if len(picked) == 0 {
		return t.empty(shape)
	}

	m := len(picked)
	sel := make([]float32, n*m)
	for i, j := range picked {
		sel[j*m+i] = 1
	}

	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		return along(g, in[0], t.shape, dim, m, sel)
	}, t)
}

// Rows waehlt Eintraege der ersten Dimension ueber die Indizes in ids aus.
// Das Ergebnis hat die Form ids.Shape() + t.Shape()[1:].
func (t *Tensor) Rows(ctx ml.Context, ids ml.Tensor) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	rows := ids.(*Tensor)
	if rows.dtype != ml.DTypeI32 {
		panic(fmt.Sprintf("cpu: row indices must be i32, got %v", rows.dtype))
	}

	n, inner := t.shape[0], numel(t.shape[1:])
	shape := append(slices.Clone(rows.shape), t.shape[1:]...)

	k := len(rows.ints)
	if k == 0 {
		return t.empty(shape)
	}

	onehot := make([]float32, k*n)
	for i, r := range rows.ints {
		if r < 0 || int(r) >= n {
			panic(fmt.Sprintf("cpu: row index %d out of range [0, %d)", r, n))
		}
		onehot[i*n+int(r)] = 1
	}

	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		w := G.Must(G.Reshape(in[0], tensor.Shape{n, inner}))
		y := G.Must(G.Mul(leaf(g, []int{k, n}, onehot), w))
		return G.Must(G.Reshape(y, tensor.Shape(slices.Clone(shape))))
	}, t)
}
