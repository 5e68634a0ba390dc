// packed.go - Gepackte Sequenzen variabler Laenge
package nn

import (
	"errors"
	"fmt"

	"github.com/7blacky7/nmt/ml"
)

// ErrUnsortedLengths wird zurueckgegeben, wenn die Laengen nicht absteigend sortiert sind
var ErrUnsortedLengths = errors.New("lengths must be sorted in descending order")

// PackedSequence haelt einen Batch sortierter Sequenzen Zeitschritt fuer
// Zeitschritt. Schritt t enthaelt nur die ersten BatchSizes[t] Sequenzen, die
// noch nicht beendet sind.
type PackedSequence struct {
	Steps      []ml.Tensor // Schritt t: (BatchSizes[t], features)
	BatchSizes []int
}

// BatchSize gibt die Anzahl der Sequenzen zurueck
func (p *PackedSequence) BatchSize() int {
	if len(p.BatchSizes) == 0 {
		return 0
	}
	return p.BatchSizes[0]
}

// PackPaddedSequence packt x (batch, time, features). lengths muss absteigend
// sortiert sein und jede Laenge in [1, time] liegen.
func PackPaddedSequence(ctx ml.Context, x ml.Tensor, lengths []int) (*PackedSequence, error) {
	batch, time, features := x.Dim(0), x.Dim(1), x.Dim(2)
	if len(lengths) != batch {
		return nil, fmt.Errorf("got %d lengths for batch of %d", len(lengths), batch)
	}

	if batch == 0 {
		return nil, errors.New("cannot pack an empty batch")
	}

	for i, n := range lengths {
		if n < 1 || n > time {
			return nil, fmt.Errorf("length %d of sequence %d out of range [1, %d]", n, i, time)
		}
		if i > 0 && n > lengths[i-1] {
			return nil, ErrUnsortedLengths
		}
	}

	var p PackedSequence
	for t := range lengths[0] {
		bs := 0
		for bs < batch && lengths[bs] > t {
			bs++
		}

		step := x.Slice(ctx, 1, t, t+1, 1).Slice(ctx, 0, 0, bs, 1).Reshape(ctx, bs, features)
		p.Steps = append(p.Steps, step)
		p.BatchSizes = append(p.BatchSizes, bs)
	}

	return &p, nil
}

// PadPackedSequence entpackt p zu (batch, totalLength, features) und fuellt
// Positionen hinter dem Ende jeder Sequenz mit 0
func PadPackedSequence(ctx ml.Context, p *PackedSequence, totalLength int) ml.Tensor {
	batch := p.BatchSize()
	features := p.Steps[0].Dim(1)

	steps := make([]ml.Tensor, len(p.Steps))
	for t, step := range p.Steps {
		if bs := p.BatchSizes[t]; bs < batch {
			step = step.Concat(ctx, ctx.Zeros(ml.DTypeF32, batch-bs, features), 0)
		}
		steps[t] = step
	}

	out := steps[0].Stack(ctx, 1, steps[1:]...)
	if n := len(steps); totalLength > n {
		out = out.Concat(ctx, ctx.Zeros(ml.DTypeF32, batch, totalLength-n, features), 1)
	}

	return out
}

// Map wendet f auf jeden Schritt an und behaelt die Batch-Groessen
func (p *PackedSequence) Map(f func(ml.Tensor) ml.Tensor) *PackedSequence {
	out := &PackedSequence{BatchSizes: p.BatchSizes, Steps: make([]ml.Tensor, len(p.Steps))}
	for t, step := range p.Steps {
		out.Steps[t] = f(step)
	}
	return out
}
