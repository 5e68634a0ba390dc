// Modul: attention.go
// Beschreibung: Bilineare Attention ueber die Encoder-Ausgaben
// Hauptstrukturen:
//   - Attention: Projektionen L1 und L2 ohne Bias
//   - Forward: Maskierte Gewichte, Kontextvektor und kombinierte Ausgabe

package seq2seq

import (
	"fmt"

	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/ml/nn"
)

// maskedScore ersetzt die Scores von Padding-Positionen vor dem Softmax
const maskedScore = -1e10

// Attention gewichtet die Encoder-Ausgaben anhand eines Decoder-Zustands
type Attention struct {
	L1 *nn.Linear // hidden -> output
	L2 *nn.Linear // output + hidden -> output
}

// NewAttention legt name.l1 und name.l2 an
func NewAttention(b ml.Backend, name string, hiddenDim, outputDim int) *Attention {
	return &Attention{
		L1: nn.NewLinear(b, name+".l1", hiddenDim, outputDim, false),
		L2: nn.NewLinear(b, name+".l2", hiddenDim+outputDim, outputDim, false),
	}
}

// Forward berechnet fuer hidden (batch, hiddenDim) und encOutputs
// (batch, srcLen, outputDim) die Ausgabe (batch, outputDim) und die
// Gewichte (batch, srcLen). Gewichte hinter der Laenge einer Sequenz sind 0.
func (a *Attention) Forward(ctx ml.Context, hidden, encOutputs, lengths ml.Tensor) (ml.Tensor, ml.Tensor, error) {
	hiddenDim, outputDim := a.L1.Weight.Dim(1), a.L1.Weight.Dim(0)
	if len(hidden.Shape()) != 2 || hidden.Dim(1) != hiddenDim {
		return nil, nil, fmt.Errorf("attention hidden %v, want (batch, %d): %w", hidden.Shape(), hiddenDim, ErrShapeMismatch)
	}

	batch := hidden.Dim(0)
	if len(encOutputs.Shape()) != 3 || encOutputs.Dim(0) != batch || encOutputs.Dim(2) != outputDim {
		return nil, nil, fmt.Errorf("attention encoder outputs %v, want (%d, srcLen, %d): %w", encOutputs.Shape(), batch, outputDim, ErrShapeMismatch)
	}

	srcLen := encOutputs.Dim(1)
	if _, err := sequenceLengths(lengths, batch, srcLen); err != nil {
		return nil, nil, fmt.Errorf("attention: %w", err)
	}

	x := a.L1.Forward(ctx, hidden)
	scores := encOutputs.Mul(ctx, x.Reshape(ctx, batch, 1, outputDim)).Sum(ctx, 2)

	mask := nn.SequenceMask(ctx, lengths, srcLen)
	penalty := mask.Floats()
	for i, m := range penalty {
		penalty[i] = (1 - m) * maskedScore
	}

	weights := scores.Mul(ctx, mask).
		Add(ctx, ctx.FromFloats(penalty, batch, srcLen)).
		Softmax(ctx)

	context := weights.Reshape(ctx, batch, srcLen, 1).Mul(ctx, encOutputs).Sum(ctx, 1)
	out := a.L2.Forward(ctx, context.Concat(ctx, hidden, 1)).Tanh(ctx)

	return out, weights, nil
}
