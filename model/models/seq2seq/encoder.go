// Modul: encoder.go
// Beschreibung: Bidirektionaler RNN-Encoder fuer Batches variabler Laenge
// Hauptstrukturen:
//   - Encoder: Embedding, Dropout und bidirektionales LSTM/GRU
//   - EncoderOutput: Ausgaben pro Position und zusammengefuehrte Endzustaende
//   - Forward: Sortiert, packt, kodiert und stellt die Batch-Reihenfolge wieder her

package seq2seq

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/7blacky7/nmt/logutil"
	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/ml/nn"
)

// Encoder kodiert Quellsequenzen
type Encoder struct {
	Embedding *nn.Embedding
	RNN       *nn.RNN

	Dropout float32
}

// EncoderOutput enthaelt die Ergebnisse des Encoders in der Reihenfolge der Eingabe
type EncoderOutput struct {
	// Outputs hat die Form (batch, srcLen, 2·hidden). Positionen hinter der
	// Laenge einer Sequenz sind 0.
	Outputs ml.Tensor

	// Hidden hat die Form (layers, batch, 2·hidden): Vorwaerts- und
	// Rueckwaertsrichtung jeder Schicht hintereinander
	Hidden ml.Tensor

	// Cell hat dieselbe Form wie Hidden und ist bei GRU nil
	Cell ml.Tensor
}

// NewEncoder legt die Gewichte unter name.embedding und name.rnn an
func NewEncoder(b ml.Backend, name string, opts Options) *Encoder {
	return &Encoder{
		Embedding: nn.NewEmbedding(b, name+".embedding", opts.SourceVocabSize, opts.EmbedDim, opts.PadIndex),
		RNN:       nn.NewRNN(b, name+".rnn", opts.CellType, opts.EmbedDim, opts.HiddenSize, opts.NumLayers, true, opts.RNNDropout),
		Dropout:   opts.Dropout,
	}
}

// Forward kodiert inputs (batch, srcLen) mit den Laengen lengths (batch).
// Jede Laenge muss in [1, srcLen] liegen; die Reihenfolge ist beliebig.
func (e *Encoder) Forward(ctx ml.Context, inputs, lengths ml.Tensor) (*EncoderOutput, error) {
	if len(inputs.Shape()) != 2 || inputs.DType() != ml.DTypeI32 {
		return nil, fmt.Errorf("encoder inputs %v of type %v: %w", inputs.Shape(), inputs.DType(), ErrShapeMismatch)
	}

	batch, srcLen := inputs.Dim(0), inputs.Dim(1)
	if batch == 0 {
		return nil, fmt.Errorf("encoder inputs %v: empty batch: %w", inputs.Shape(), ErrShapeMismatch)
	}

	if err := checkTokens(inputs.Ints(), e.Embedding.Weight.Dim(0)); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	lens, err := sequenceLengths(lengths, batch, srcLen)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	order := sortByLength(lens)
	restore := ctx.FromInts(inversePermutation(order), batch)

	sortedLens := make([]int, batch)
	for i, j := range order {
		sortedLens[i] = lens[j]
	}

	embedded := e.Embedding.Forward(ctx, inputs).Dropout(ctx, e.Dropout)
	embedded = embedded.Rows(ctx, ctx.FromInts(order, batch))

	packed, err := nn.PackPaddedSequence(ctx, embedded, sortedLens)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	packed, states, err := e.RNN.Forward(ctx, packed, nil)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	out := &EncoderOutput{
		Outputs: nn.PadPackedSequence(ctx, packed, srcLen).Rows(ctx, restore),
	}

	// Endzustaende (layers·2, batch, hidden) -> (layers, batch, 2·hidden)
	var hiddens, cells []ml.Tensor
	for layer := range e.RNN.NumLayers {
		fwd, bwd := states[2*layer], states[2*layer+1]
		hiddens = append(hiddens, fwd.Hidden.Concat(ctx, bwd.Hidden, 1).Rows(ctx, restore))
		if fwd.Cell != nil {
			cells = append(cells, fwd.Cell.Concat(ctx, bwd.Cell, 1).Rows(ctx, restore))
		}
	}

	out.Hidden = hiddens[0].Stack(ctx, 0, hiddens[1:]...)
	if len(cells) > 0 {
		out.Cell = cells[0].Stack(ctx, 0, cells[1:]...)
	}

	logutil.Trace("encoder forward", "batch", batch, "src_len", srcLen, "lengths", lens, "outputs", out.Outputs.Shape())
	return out, nil
}

// sequenceLengths liest lengths (batch) als I32 und prueft jede Laenge auf [1, maxLen]
func sequenceLengths(lengths ml.Tensor, batch, maxLen int) ([]int, error) {
	if lengths == nil || len(lengths.Shape()) != 1 || lengths.DType() != ml.DTypeI32 || lengths.Dim(0) != batch {
		var shape []int
		if lengths != nil {
			shape = lengths.Shape()
		}
		return nil, fmt.Errorf("lengths %v for batch of %d: %w", shape, batch, ErrShapeMismatch)
	}

	lens := make([]int, batch)
	for i, n := range lengths.Ints() {
		if n < 1 || int(n) > maxLen {
			return nil, fmt.Errorf("length %d of sequence %d not in [1, %d]: %w", n, i, maxLen, ErrInvalidLength)
		}
		lens[i] = int(n)
	}

	return lens, nil
}

// sortByLength gibt die Indizes nach absteigender Laenge zurueck. Gleich lange
// Sequenzen behalten ihre Reihenfolge.
func sortByLength(lens []int) []int32 {
	order := make([]int32, len(lens))
	for i := range order {
		order[i] = int32(i)
	}

	slices.SortStableFunc(order, func(a, b int32) int {
		return cmp.Compare(lens[b], lens[a])
	})

	return order
}

// inversePermutation gibt restore mit restore[order[i]] = i zurueck
func inversePermutation(order []int32) []int32 {
	restore := make([]int32, len(order))
	for i, j := range order {
		restore[j] = int32(i)
	}
	return restore
}
