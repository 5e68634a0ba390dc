// mask.go - Sequenzmasken fuer Batches variabler Laenge
package nn

import (
	"slices"

	"github.com/7blacky7/nmt/ml"
)

// SequenceMask erstellt eine F32-Maske (batch, maxLen), die 1 ist, wo die
// Position kleiner als die Laenge der Sequenz ist, sonst 0. Mit maxLen <= 0
// wird die groesste Laenge verwendet.
func SequenceMask(ctx ml.Context, lengths ml.Tensor, maxLen int) ml.Tensor {
	lens := lengths.Ints()
	if maxLen <= 0 && len(lens) > 0 {
		maxLen = int(slices.Max(lens))
	}

	mask := make([]float32, len(lens)*maxLen)
	for b, n := range lens {
		for t := 0; t < maxLen && t < int(n); t++ {
			mask[b*maxLen+t] = 1
		}
	}

	return ctx.FromFloats(mask, len(lens), maxLen)
}
