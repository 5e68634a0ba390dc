// Modul: model.go
// Beschreibung: Seq2Seq-Modell aus Encoder und Decoder
// Hauptstrukturen:
//   - Model: Registrierte Architektur "seq2seq"
//   - InitialState: Uebergang vom Encoder zum ersten Decoder-Schritt
//   - Greedy: Gierige Dekodierung fuer eine feste Anzahl Schritte

package seq2seq

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/7blacky7/nmt/fs"
	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/model"
)

// Model verbindet Encoder und Decoder
type Model struct {
	model.Base

	Encoder *Encoder
	Decoder *Decoder

	Options Options
}

// New erstellt ein Seq2Seq-Modell mit frisch initialisierten Gewichten in b
func New(b ml.Backend, c fs.Config) (model.Model, error) {
	opts, err := OptionsFromConfig(c)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Base:    model.NewBase(b, c),
		Encoder: NewEncoder(b, "encoder", opts),
		Decoder: NewDecoder(b, "decoder", opts),
		Options: opts,
	}

	slog.Debug("seq2seq model", "cell", opts.CellType, "layers", opts.NumLayers, "hidden", opts.HiddenSize, "attention", opts.Attention)
	return m, nil
}

// Validate prueft, ob Encoder- und Decoder-Zustaende zueinander passen
func (m *Model) Validate() error {
	if got, want := m.Decoder.HiddenSize, 2*m.Encoder.RNN.HiddenSize; got != want {
		return fmt.Errorf("decoder hidden size %d, want %d: %w", got, want, ErrShapeMismatch)
	}

	if got, want := len(m.Decoder.Layers), m.Encoder.RNN.NumLayers; got != want {
		return fmt.Errorf("decoder has %d layers, encoder %d: %w", got, want, ErrShapeMismatch)
	}

	return nil
}

// Encode kodiert inputs (batch, srcLen) mit den Laengen lengths (batch)
func (m *Model) Encode(ctx ml.Context, inputs, lengths ml.Tensor) (*EncoderOutput, error) {
	return m.Encoder.Forward(ctx, inputs, lengths)
}

// InitialState erstellt den Decoder-Zustand vor dem ersten Schritt. Der
// Kontextvektor ist 0; ohne Zellzustand (GRU) beginnen die Zellen bei 0.
func (m *Model) InitialState(ctx ml.Context, enc *EncoderOutput) DecoderState {
	batch := enc.Hidden.Dim(1)
	state := DecoderState{
		Context: ctx.Zeros(ml.DTypeF32, batch, m.Decoder.HiddenSize),
		Hidden:  enc.Hidden,
		Cell:    enc.Cell,
	}

	if state.Cell == nil {
		state.Cell = ctx.Zeros(ml.DTypeF32, enc.Hidden.Shape()...)
	}

	return state
}

// Step fuehrt einen Decoder-Schritt aus
func (m *Model) Step(ctx ml.Context, tokens ml.Tensor, state DecoderState, enc *EncoderOutput, lengths ml.Tensor) (*DecoderOutput, error) {
	return m.Decoder.Forward(ctx, tokens, state, enc.Outputs, lengths)
}

// DecodeOptions steuert Greedy
type DecodeOptions struct {
	Start    int32
	End      int32 // < 0 deaktiviert den vorzeitigen Abbruch
	MaxSteps int
}

// Translation ist das Ergebnis von Greedy
type Translation struct {
	// Tokens enthaelt pro Sequenz die erzeugten Tokens. Nach End folgt PadIndex.
	Tokens [][]int32

	// Scores ist die Summe der Log-Wahrscheinlichkeiten der gewaehlten Tokens bis einschliesslich End
	Scores []float32

	// Attention enthaelt pro Schritt die Gewichte (batch, srcLen); nil ohne Attention
	Attention []ml.Tensor
}

// Greedy waehlt in jedem Schritt das wahrscheinlichste Token. Dropout ist nur
// aktiv, wenn ctx im Trainingsmodus ist. Waehrend der Suche zeichnet ctx
// keine Gradienten auf, danach gilt wieder der vorherige Modus.
func (m *Model) Greedy(ctx ml.Context, inputs, lengths ml.Tensor, opts DecodeOptions) (*Translation, error) {
	if opts.MaxSteps <= 0 {
		return nil, fmt.Errorf("greedy decoding needs at least one step, got %d: %w", opts.MaxSteps, ErrInvalidLength)
	}

	vocab := m.Options.TargetVocabSize
	if err := checkTokens([]int32{opts.Start}, vocab); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	if opts.End >= int32(vocab) {
		return nil, fmt.Errorf("end token %d, vocabulary size %d: %w", opts.End, vocab, ErrInvalidToken)
	}

	defer ctx.SetGradEnabled(ctx.GradEnabled())
	ctx.SetGradEnabled(false)

	enc, err := m.Encode(ctx, inputs, lengths)
	if err != nil {
		return nil, err
	}

	batch := inputs.Dim(0)
	state := m.InitialState(ctx, enc)

	prev := make([]int32, batch)
	for i := range prev {
		prev[i] = opts.Start
	}

	tr := &Translation{
		Tokens: make([][]int32, batch),
		Scores: make([]float32, batch),
	}

	done := make([]bool, batch)
	for step := range opts.MaxSteps {
		out, err := m.Step(ctx, ctx.FromInts(prev, batch), state, enc, lengths)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		logProbs := out.LogProbs.Floats()
		for b := range batch {
			if done[b] {
				prev[b] = int32(m.Options.PadIndex)
				tr.Tokens[b] = append(tr.Tokens[b], prev[b])
				continue
			}

			row := logProbs[b*vocab : (b+1)*vocab]
			best := slices.Index(row, slices.Max(row))

			prev[b] = int32(best)
			tr.Tokens[b] = append(tr.Tokens[b], prev[b])
			tr.Scores[b] += row[best]
			done[b] = opts.End >= 0 && prev[b] == opts.End
		}

		if out.Attention != nil {
			tr.Attention = append(tr.Attention, out.Attention)
		}

		state = out.State
		if !slices.Contains(done, false) {
			break
		}
	}

	return tr, nil
}

func init() {
	model.Register("seq2seq", New)
}
