// tensor_nn.go - Neuronale Netzwerk Operationen
// Enthält: Aktivierungen (Tanh, Sigmoid), Softmax, LogSoftmax, Dropout

package cpu

import (
	"fmt"

	"github.com/chewxy/math32"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/7blacky7/nmt/ml"
)

// unary wendet die elementweise gorgonia-Operation op an
func (t *Tensor) unary(ctx ml.Context, op func(*G.Node) (*G.Node, error)) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	return c.apply(t.shape, func(_ *G.ExprGraph, in ...*G.Node) *G.Node {
		return G.Must(op(in[0]))
	}, t)
}

// Tanh berechnet Tangens Hyperbolicus
func (t *Tensor) Tanh(ctx ml.Context) ml.Tensor {
	return t.unary(ctx, G.Tanh)
}

// Sigmoid berechnet die logistische Funktion
func (t *Tensor) Sigmoid(ctx ml.Context) ml.Tensor {
	return t.unary(ctx, G.Sigmoid)
}

// rows zerlegt t fuer zeilenweise Operationen ueber die letzte Dimension
func (t *Tensor) rows() (n, d int) {
	if len(t.shape) == 0 {
		panic("cpu: operation requires at least one dimension")
	}
	d = t.shape[len(t.shape)-1]
	return numel(t.shape) / d, d
}

// logSoftmax baut log(Softmax) als Matrix (n, d). Das Zeilenmaximum geht als
// Konstante ein, die Ableitung haengt nicht von ihm ab.
func (t *Tensor) logSoftmax(ctx ml.Context, exp bool) ml.Tensor {
	c := ctx.(*Context)
	t.f32()

	n, d := t.rows()
	vals := t.values()
	m := make([]float32, n)
	for r := range n {
		m[r] = math32.Inf(-1)
		for _, v := range vals[r*d : (r+1)*d] {
			m[r] = math32.Max(m[r], v)
		}
	}

	return c.apply(t.shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		ones := leaf(g, []int{1, d}, filled(d, 1))

		x := G.Must(G.Reshape(in[0], tensor.Shape{n, d}))
		z := G.Must(G.Sub(x, G.Must(G.Mul(leaf(g, []int{n, 1}, m), ones))))
		s := G.Must(G.Mul(G.Must(G.Exp(z)), leaf(g, []int{d, 1}, filled(d, 1))))
		y := G.Must(G.Sub(z, G.Must(G.Mul(G.Must(G.Log(s)), ones))))
		if exp {
			y = G.Must(G.Exp(y))
		}

		return G.Must(G.Reshape(y, tensor.Shape(t.Shape())))
	}, t)
}

// Softmax berechnet Softmax ueber die letzte Dimension
func (t *Tensor) Softmax(ctx ml.Context) ml.Tensor {
	return t.logSoftmax(ctx, true)
}

// LogSoftmax berechnet log(Softmax) numerisch stabil ueber die letzte Dimension
func (t *Tensor) LogSoftmax(ctx ml.Context) ml.Tensor {
	return t.logSoftmax(ctx, false)
}

// Dropout setzt im Trainingsmodus Elemente mit Wahrscheinlichkeit p auf 0
func (t *Tensor) Dropout(ctx ml.Context, p float32) ml.Tensor {
	c := ctx.(*Context)
	if !c.training || p == 0 {
		return t
	}

	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("cpu: dropout probability %v out of range [0, 1)", p))
	}

	t.f32()
	mask := c.mask(numel(t.shape), p, 1/(1-p))

	return c.apply(t.shape, func(g *G.ExprGraph, in ...*G.Node) *G.Node {
		return G.Must(G.HadamardProd(in[0], leaf(g, t.shape, mask)))
	}, t)
}
