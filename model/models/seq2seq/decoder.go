// Modul: decoder.go
// Beschreibung: LSTM-Decoder mit optionaler Attention, ein Zeitschritt pro Aufruf
// Hauptstrukturen:
//   - Decoder: Embedding, LSTM-Zellen, Attention und Ausgabeprojektion
//   - DecoderState: Kontextvektor und Zustaende aller Schichten
//   - Forward: Reine Schrittfunktion (Zustand rein, Zustand raus)

package seq2seq

import (
	"fmt"
	"slices"

	"github.com/7blacky7/nmt/logutil"
	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/ml/nn"
)

// Decoder erzeugt pro Schritt eine Log-Wahrscheinlichkeitsverteilung ueber das Zielvokabular
type Decoder struct {
	Embedding *nn.Embedding
	Layers    []*nn.LSTMCell
	Attention *Attention // nil ohne Attention
	Output    *nn.Linear

	HiddenSize int
	Dropout    float32
}

// DecoderState wird von Schritt zu Schritt weitergereicht
type DecoderState struct {
	Context ml.Tensor // (batch, hidden), nur mit Attention benoetigt
	Hidden  ml.Tensor // (layers, batch, hidden)
	Cell    ml.Tensor // (layers, batch, hidden)
}

// DecoderOutput ist das Ergebnis eines Schritts
type DecoderOutput struct {
	LogProbs ml.Tensor // (batch, vocab)
	State    DecoderState

	// Attention hat die Form (batch, srcLen) und ist ohne Attention nil
	Attention ml.Tensor
}

// NewDecoder legt die Gewichte unter name.embedding, name.layers.N,
// name.attention und name.output an
func NewDecoder(b ml.Backend, name string, opts Options) *Decoder {
	hidden := opts.DecoderHiddenSize()
	d := &Decoder{
		Embedding:  nn.NewEmbedding(b, name+".embedding", opts.TargetVocabSize, opts.EmbedDim, opts.PadIndex),
		HiddenSize: hidden,
		Dropout:    opts.Dropout,
	}

	for layer := range opts.NumLayers {
		in := hidden
		if layer == 0 {
			in = opts.EmbedDim
			if opts.Attention {
				in += hidden
			}
		}
		d.Layers = append(d.Layers, nn.NewLSTMCell(b, fmt.Sprintf("%s.layers.%d", name, layer), in, hidden))
	}

	if opts.Attention {
		d.Attention = NewAttention(b, name+".attention", hidden, hidden)
	}

	d.Output = nn.NewLinearFanIn(b, name+".output", hidden, opts.TargetVocabSize, true)
	return d
}

// Forward fuehrt einen Schritt fuer die Tokens tokens (batch) aus. state
// wird nicht veraendert; der neue Zustand steht in DecoderOutput.State.
func (d *Decoder) Forward(ctx ml.Context, tokens ml.Tensor, state DecoderState, encOutputs, lengths ml.Tensor) (*DecoderOutput, error) {
	if err := d.validate(tokens, state); err != nil {
		return nil, err
	}

	batch := tokens.Dim(0)
	if len(tokens.Shape()) == 2 {
		tokens = ctx.FromInts(tokens.Ints(), batch)
	}

	x := d.Embedding.Forward(ctx, tokens).Dropout(ctx, d.Dropout)
	if d.Attention != nil {
		x = x.Concat(ctx, state.Context, 1)
	}

	hiddens := make([]ml.Tensor, len(d.Layers))
	cells := make([]ml.Tensor, len(d.Layers))
	var top ml.Tensor
	for i, layer := range d.Layers {
		s := layer.Forward(ctx, x, nn.State{
			Hidden: state.Hidden.Slice(ctx, 0, i, i+1, 1).Reshape(ctx, batch, d.HiddenSize),
			Cell:   state.Cell.Slice(ctx, 0, i, i+1, 1).Reshape(ctx, batch, d.HiddenSize),
		})

		hiddens[i], cells[i] = s.Hidden, s.Cell
		top = s.Hidden
		x = s.Hidden.Dropout(ctx, d.Dropout)
	}

	out := &DecoderOutput{
		State: DecoderState{
			Context: top,
			Hidden:  hiddens[0].Stack(ctx, 0, hiddens[1:]...),
			Cell:    cells[0].Stack(ctx, 0, cells[1:]...),
		},
	}

	if d.Attention != nil {
		context, weights, err := d.Attention.Forward(ctx, top, encOutputs, lengths)
		if err != nil {
			return nil, fmt.Errorf("decoder: %w", err)
		}
		out.State.Context, out.Attention = context, weights
	}

	out.LogProbs = d.Output.Forward(ctx, out.State.Context.Dropout(ctx, d.Dropout)).LogSoftmax(ctx)

	logutil.Trace("decoder step", "batch", batch, "attention", d.Attention != nil)
	return out, nil
}

// validate prueft die Formen von tokens und state und den Wertebereich der Tokens
func (d *Decoder) validate(tokens ml.Tensor, state DecoderState) error {
	shape := tokens.Shape()
	if tokens.DType() != ml.DTypeI32 || len(shape) == 0 || len(shape) > 2 || (len(shape) == 2 && shape[1] != 1) {
		return fmt.Errorf("decoder tokens %v of type %v, want (batch): %w", shape, tokens.DType(), ErrShapeMismatch)
	}

	if shape[0] == 0 {
		return fmt.Errorf("decoder tokens %v: empty batch: %w", shape, ErrShapeMismatch)
	}

	if err := checkTokens(tokens.Ints(), d.Embedding.Weight.Dim(0)); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}

	want := []int{len(d.Layers), shape[0], d.HiddenSize}
	if state.Hidden == nil || !slices.Equal(state.Hidden.Shape(), want) {
		return fmt.Errorf("decoder hidden state, want %v: %w", want, ErrShapeMismatch)
	}

	if state.Cell == nil || !slices.Equal(state.Cell.Shape(), want) {
		return fmt.Errorf("decoder cell state, want %v: %w", want, ErrShapeMismatch)
	}

	if d.Attention != nil && (state.Context == nil || !slices.Equal(state.Context.Shape(), want[1:])) {
		return fmt.Errorf("decoder context, want %v: %w", want[1:], ErrShapeMismatch)
	}

	return nil
}
