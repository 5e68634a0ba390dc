// linear.go - Affine Projektion
package nn

import "github.com/7blacky7/nmt/ml"

// Linear berechnet x·Wᵀ + b mit W der Form (out, in)
type Linear struct {
	Weight ml.Tensor
	Bias   ml.Tensor
}

// NewLinear legt name.weight und, falls bias gesetzt ist, name.bias an
func NewLinear(b ml.Backend, name string, in, out int, bias bool) *Linear {
	l := &Linear{Weight: uniform(b, name+".weight", out, in)}
	if bias {
		l.Bias = uniform(b, name+".bias", out)
	}

	return l
}

// NewLinearFanIn legt eine Linear-Schicht an, deren Gewicht und Bias
// gleichverteilt in [-1/√in, 1/√in] liegen
func NewLinearFanIn(b ml.Backend, name string, in, out int, bias bool) *Linear {
	bound := fanIn(in)

	l := &Linear{Weight: uniformIn(b, name+".weight", bound, out, in)}
	if bias {
		l.Bias = uniformIn(b, name+".bias", bound, out)
	}

	return l
}

// Forward projiziert die letzte Dimension von t
func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	t = m.Weight.Mulmat(ctx, t)
	if m.Bias != nil {
		t = t.Add(ctx, m.Bias)
	}

	return t
}
