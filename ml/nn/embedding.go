// embedding.go - Token-Embedding mit Padding-Index
package nn

import (
	"github.com/7blacky7/nmt/ml"
)

// Embedding bildet Vokabular-Indizes auf Vektoren ab. Die Zeile PaddingIdx
// ist null und erhaelt keinen Gradienten.
type Embedding struct {
	Weight     ml.Tensor
	PaddingIdx int32
}

// NewEmbedding legt eine Tabelle (numEmbeddings, dim) unter name.weight an
func NewEmbedding(b ml.Backend, name string, numEmbeddings, dim, paddingIdx int) *Embedding {
	e := &Embedding{
		Weight:     uniform(b, name+".weight", numEmbeddings, dim),
		PaddingIdx: int32(paddingIdx),
	}

	values := e.Weight.Floats()
	clear(values[paddingIdx*dim : (paddingIdx+1)*dim])
	e.Weight.FromFloats(values)

	return e
}

// Forward schlaegt die Indizes in ids nach; das Ergebnis hat die Form
// ids.Shape() + (dim). Positionen mit PaddingIdx werden maskiert, damit die
// Padding-Zeile keinen Gradienten bekommt.
func (e *Embedding) Forward(ctx ml.Context, ids ml.Tensor) ml.Tensor {
	keep := make([]float32, 0, len(ids.Ints()))
	for _, id := range ids.Ints() {
		if id == e.PaddingIdx {
			keep = append(keep, 0)
		} else {
			keep = append(keep, 1)
		}
	}

	mask := ctx.FromFloats(keep, append(ids.Shape(), 1)...)
	return e.Weight.Rows(ctx, ids).Mul(ctx, mask)
}
