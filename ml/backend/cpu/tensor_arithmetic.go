// tensor_arithmetic.go - Elementweise Arithmetik mit Broadcasting
// Enthält: Add, Sub, Mul, Scale, Sum

package cpu

import (
	"fmt"
	"slices"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/7blacky7/nmt/ml"
)

// broadcastShape bestimmt die gemeinsame Form zweier Operanden nach NumPy-Regeln
func broadcastShape(a, b []int) []int {
	n := max(len(a), len(b))
	out := make([]int, n)
	for i := range n {
		da, db := 1, 1
		if j := i - (n - len(a)); j >= 0 {
			da = a[j]
		}
		if j := i - (n - len(b)); j >= 0 {
			db = b[j]
		}

		switch {
		case da == db, db == 1:
			out[i] = da
		case da == 1:
			out[i] = db
		default:
			panic(fmt.Sprintf("cpu: shapes %v and %v cannot be broadcast", a, b))
		}
	}

	return out
}

// binary fuehrt eine elementweise gorgonia-Operation nach dem Broadcasting
// beider Operanden auf die gemeinsame Form aus
func (t *Tensor) binary(ctx ml.Context, t2 ml.Tensor, op func(a, b *G.Node) (*G.Node, error)) ml.Tensor {
	c := ctx.(*Context)
	u := t2.(*Tensor)
	t.f32()
	u.f32()

	shape := broadcastShape(t.shape, u.shape)
	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		return G.Must(op(broadcastTo(g, in[0], t.shape, shape), broadcastTo(g, in[1], u.shape, shape)))
	}, t, u)
}

// Add addiert elementweise
func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, func(a, b *G.Node) (*G.Node, error) { return G.Add(a, b) })
}

// Sub subtrahiert elementweise
func (t *Tensor) Sub(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, func(a, b *G.Node) (*G.Node, error) { return G.Sub(a, b) })
}

// Mul multipliziert elementweise
func (t *Tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binary(ctx, t2, func(a, b *G.Node) (*G.Node, error) { return G.HadamardProd(a, b) })
}

// Scale multipliziert alle Elemente mit s
func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	return c.apply(t.shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		return G.Must(G.HadamardProd(in[0], leaf(g, t.shape, filled(numel(t.shape), float32(s)))))
	}, t)
}

// Sum summiert ueber Dimension dim und entfernt sie aus der Form
func (t *Tensor) Sum(ctx ml.Context, dim int) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	_, n, _ := splitAt(t.shape, dim)
	shape := slices.Delete(slices.Clone(t.shape), dim, dim+1)

	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		if len(shape) == 0 {
			return G.Must(G.Sum(in[0]))
		}

		y := along(g, in[0], t.shape, dim, 1, filled(n, 1))
		return G.Must(G.Reshape(y, tensor.Shape(slices.Clone(shape))))
	}, t)
}
