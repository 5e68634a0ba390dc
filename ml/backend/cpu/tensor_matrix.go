// tensor_matrix.go - Matrix-Operationen
// Enthält: Mulmat

package cpu

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/7blacky7/nmt/ml"
)

// Mulmat berechnet t2 · tᵀ. t hat die Form (n, k), t2 die Form (..., k);
// das Ergebnis hat die Form (..., n). Mit t als Gewicht (out, in) entspricht
// das einer linearen Schicht.
func (t *Tensor) Mulmat(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	c := ctx.(*Context)
	u := t2.(*Tensor)
	t.f32()
	u.f32()

	if len(t.shape) != 2 || len(u.shape) == 0 || u.shape[len(u.shape)-1] != t.shape[1] {
		panic(fmt.Sprintf("cpu: cannot multiply %v with transpose of %v", u.shape, t.shape))
	}

	n, k := t.shape[0], t.shape[1]
	m := numel(u.shape) / k
	shape := append(append([]int{}, u.shape[:len(u.shape)-1]...), n)

	return c.apply(shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		x := G.Must(G.Reshape(in[1], tensor.Shape{m, k}))
		y := G.Must(G.Mul(x, G.Must(G.Transpose(in[0]))))
		return G.Must(G.Reshape(y, tensor.Shape(shape)))
	}, t, u)
}
