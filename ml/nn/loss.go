// loss.go - Verlustfunktionen
package nn

import "github.com/7blacky7/nmt/ml"

// NLLLoss berechnet die mittlere negative Log-Likelihood der Ziel-Indizes
// targets (n) unter logProbs (n, vocab). Ziele gleich ignoreIndex zaehlen nicht.
func NLLLoss(ctx ml.Context, logProbs, targets ml.Tensor, ignoreIndex int) ml.Tensor {
	n, vocab := logProbs.Dim(0), logProbs.Dim(1)

	onehot := make([]float32, n*vocab)
	var count int
	for i, target := range targets.Ints() {
		if int(target) == ignoreIndex {
			continue
		}
		onehot[i*vocab+int(target)] = 1
		count++
	}

	picked := logProbs.Mul(ctx, ctx.FromFloats(onehot, n, vocab)).Sum(ctx, 1).Sum(ctx, 0)
	if count == 0 {
		return picked
	}

	return picked.Scale(ctx, -1/float64(count))
}
