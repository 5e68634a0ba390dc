// rnn.go - Mehrschichtiges, optional bidirektionales RNN
//
// Hauptstrukturen:
//   - RNN: Stapel von Zellen pro Schicht und Richtung
//   - Forward: Verarbeitet eine PackedSequence, liefert Ausgaben und Endzustaende
package nn

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/nmt/ml"
)

// RNN verarbeitet gepackte Sequenzen mit NumLayers Schichten. Bei
// bidirektionalen Netzen ist die Ausgabe jeder Schicht die Verkettung von
// Vorwaerts- und Rueckwaertsrichtung.
type RNN struct {
	Type          CellType
	Cells         [][]Cell // [Schicht][Richtung]
	HiddenSize    int
	NumLayers     int
	Bidirectional bool

	// Dropout wird im Training auf die Ausgabe jeder Schicht ausser der letzten angewendet
	Dropout float32

	parallel bool
}

// NewRNN legt die Zellen unter name.l{Schicht} bzw. name.l{Schicht}_reverse an
func NewRNN(b ml.Backend, name string, typ CellType, inputSize, hiddenSize, numLayers int, bidirectional bool, dropout float32) *RNN {
	r := &RNN{
		Type:          typ,
		HiddenSize:    hiddenSize,
		NumLayers:     numLayers,
		Bidirectional: bidirectional,
		Dropout:       dropout,
		parallel:      bidirectional && b.Device().ThreadCount > 1,
	}

	for layer := range numLayers {
		in := inputSize
		if layer > 0 {
			in = hiddenSize * r.NumDirections()
		}

		cells := []Cell{NewCell(b, fmt.Sprintf("%s.l%d", name, layer), typ, in, hiddenSize)}
		if bidirectional {
			cells = append(cells, NewCell(b, fmt.Sprintf("%s.l%d_reverse", name, layer), typ, in, hiddenSize))
		}
		r.Cells = append(r.Cells, cells)
	}

	return r
}

// NumDirections gibt 2 fuer bidirektionale Netze zurueck, sonst 1
func (r *RNN) NumDirections() int {
	if r.Bidirectional {
		return 2
	}
	return 1
}

// Forward verarbeitet x. initial enthaelt NumLayers·NumDirections Zustaende
// in der Reihenfolge (Schicht 0 vorwaerts, Schicht 0 rueckwaerts, ...) oder
// ist nil fuer Nullzustaende. Die Endzustaende haben dieselbe Reihenfolge;
// jeder enthaelt den Zustand nach dem letzten gueltigen Schritt jeder Sequenz.
func (r *RNN) Forward(ctx ml.Context, x *PackedSequence, initial []State) (*PackedSequence, []State, error) {
	dirs := r.NumDirections()
	if initial != nil && len(initial) != r.NumLayers*dirs {
		return nil, nil, fmt.Errorf("got %d initial states, want %d", len(initial), r.NumLayers*dirs)
	}

	batch := x.BatchSize()
	finals := make([]State, 0, r.NumLayers*dirs)
	for layer, cells := range r.Cells {
		if layer > 0 {
			x = x.Map(func(t ml.Tensor) ml.Tensor { return t.Dropout(ctx, r.Dropout) })
		}

		outputs := make([]*PackedSequence, dirs)
		states := make([]State, dirs)

		var g errgroup.Group
		if !r.parallel {
			g.SetLimit(1)
		}

		for dir, cell := range cells {
			var start State
			if initial != nil {
				start = initial[layer*dirs+dir]
			} else {
				start = r.zeroState(ctx, batch)
			}

			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("rnn layer %d direction %d: %v", layer, dir, p)
					}
				}()

				if dir == 0 {
					outputs[dir], states[dir] = runForward(ctx, cell, x, start)
				} else {
					outputs[dir], states[dir] = runReverse(ctx, cell, x, start)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		x = outputs[0]
		if dirs == 2 {
			for t := range x.Steps {
				x.Steps[t] = x.Steps[t].Concat(ctx, outputs[1].Steps[t], 1)
			}
		}

		finals = append(finals, states...)
		slog.Debug("rnn layer", "layer", layer, "type", r.Type, "steps", len(x.Steps), "batch", batch)
	}

	return x, finals, nil
}

func (r *RNN) zeroState(ctx ml.Context, batch int) State {
	s := State{Hidden: ctx.Zeros(ml.DTypeF32, batch, r.HiddenSize)}
	if r.Type == CellLSTM {
		s.Cell = ctx.Zeros(ml.DTypeF32, batch, r.HiddenSize)
	}
	return s
}

// sliceState waehlt die Zeilen [low, high) eines Zustands
func sliceState(ctx ml.Context, s State, low, high int) State {
	out := State{Hidden: s.Hidden.Slice(ctx, 0, low, high, 1)}
	if s.Cell != nil {
		out.Cell = s.Cell.Slice(ctx, 0, low, high, 1)
	}
	return out
}

// concatState haengt die Zeilen von b an a an
func concatState(ctx ml.Context, a, b State) State {
	out := State{Hidden: a.Hidden.Concat(ctx, b.Hidden, 0)}
	if a.Cell != nil {
		out.Cell = a.Cell.Concat(ctx, b.Cell, 0)
	}
	return out
}

// runForward laeuft von t = 0 aufwaerts. Endet eine Sequenz, wird ihr Zustand
// eingefroren und am Schluss in Batch-Reihenfolge wieder angefuegt.
func runForward(ctx ml.Context, cell Cell, x *PackedSequence, start State) (*PackedSequence, State) {
	out := &PackedSequence{BatchSizes: x.BatchSizes, Steps: make([]ml.Tensor, len(x.Steps))}

	var finished []State
	state := start
	active := x.BatchSize()
	for t, step := range x.Steps {
		if bs := x.BatchSizes[t]; bs < active {
			finished = append([]State{sliceState(ctx, state, bs, active)}, finished...)
			state = sliceState(ctx, state, 0, bs)
			active = bs
		}

		state = cell.Forward(ctx, step, state)
		out.Steps[t] = state.Hidden
	}

	for _, s := range finished {
		state = concatState(ctx, state, s)
	}

	return out, state
}

// runReverse laeuft von t = T-1 abwaerts. Sequenzen beginnen bei ihrem
// letzten gueltigen Schritt mit ihrem Anfangszustand.
func runReverse(ctx ml.Context, cell Cell, x *PackedSequence, start State) (*PackedSequence, State) {
	out := &PackedSequence{BatchSizes: x.BatchSizes, Steps: make([]ml.Tensor, len(x.Steps))}

	var state State
	active := 0
	for t := len(x.Steps) - 1; t >= 0; t-- {
		if bs := x.BatchSizes[t]; bs > active {
			fresh := sliceState(ctx, start, active, bs)
			if active == 0 {
				state = fresh
			} else {
				state = concatState(ctx, state, fresh)
			}
			active = bs
		}

		state = cell.Forward(ctx, x.Steps[t], state)
		out.Steps[t] = state.Hidden
	}

	return out, state
}
