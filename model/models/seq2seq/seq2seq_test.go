// MODUL: seq2seq_test
// ZWECK: Tests fuer Encoder, Attention, Decoder und gierige Dekodierung
// INPUT: Kleine Modelle mit festem Seed
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, go-cmp, testify, ml/backend/cpu
// HINWEISE: Alle Tests laufen im Inferenz-Modus, damit Dropout deterministisch ist

package seq2seq

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/nmt/fs"
	"github.com/7blacky7/nmt/ml"
	"github.com/7blacky7/nmt/ml/backend/cpu"
	"github.com/7blacky7/nmt/ml/nn"
	"github.com/7blacky7/nmt/model"
)

var approx = cmpopts.EquateApprox(0, 1e-4)

func testOptions() Options {
	return Options{
		SourceVocabSize: 11,
		TargetVocabSize: 13,
		EmbedDim:        6,
		HiddenSize:      4,
		NumLayers:       2,
		CellType:        nn.CellLSTM,
		Attention:       true,
		PadIndex:        0,
		Dropout:         DefaultDropout,
		RNNDropout:      DefaultRNNDropout,
	}
}

// newModel erstellt ein Modell mit festem Seed und einen Context im Inferenz-Modus
func newModel(t *testing.T, opts Options) (*Model, ml.Context) {
	t.Helper()

	b, err := cpu.New(ml.BackendParams{Device: "cpu", Seed: 11, NumThreads: 2})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	m, err := New(b, opts.Config())
	require.NoError(t, err)

	ctx := b.NewContext()
	t.Cleanup(ctx.Close)
	return m.(*Model), ctx
}

// sourceBatch liefert zwei Quellsaetze der Laengen 5 und 3, mit Padding auf 5
func sourceBatch(ctx ml.Context) (ml.Tensor, ml.Tensor) {
	inputs := ctx.FromInts([]int32{
		3, 4, 5, 6, 7,
		8, 9, 2, 0, 0,
	}, 2, 5)
	return inputs, ctx.FromInts([]int32{5, 3}, 2)
}

func TestOptionsFromConfig(t *testing.T) {
	want := testOptions()
	want.CellType = nn.CellGRU
	want.Attention = false

	got, err := OptionsFromConfig(want.Config())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Optionen falsch (-erwartet +erhalten):\n%s", diff)
	}

	defaults, err := OptionsFromConfig(fs.KV{
		"general.architecture":      "seq2seq",
		"seq2seq.source.vocab_size": uint32(10),
		"seq2seq.target.vocab_size": uint32(10),
		"seq2seq.embedding_length":  uint32(8),
		"seq2seq.hidden_size":       uint32(8),
	})
	require.NoError(t, err)

	if defaults.Dropout != DefaultDropout || defaults.RNNDropout != DefaultRNNDropout {
		t.Errorf("Dropout-Defaults = %v, %v", defaults.Dropout, defaults.RNNDropout)
	}
	if defaults.NumLayers != 1 || !defaults.Attention || defaults.CellType != nn.CellLSTM {
		t.Errorf("Defaults falsch: %+v", defaults)
	}

	bad := testOptions().Config()
	bad["seq2seq.cell_type"] = "rnn"
	if _, err := OptionsFromConfig(bad); err == nil {
		t.Error("unbekannter Zelltyp sollte fehlschlagen")
	}

	invalid := testOptions()
	invalid.PadIndex = 20
	if err := invalid.Validate(); err == nil {
		t.Error("Padding-Index ausserhalb des Vokabulars sollte fehlschlagen")
	}
}

func TestRegistry(t *testing.T) {
	m, err := model.New(ml.BackendParams{Device: "cpu", Seed: 1}, testOptions().Config())
	require.NoError(t, err)
	defer m.Backend().Close()

	s, ok := m.(*Model)
	require.True(t, ok, "model.New liefert %T", m)
	if s.Decoder.Attention == nil {
		t.Error("Decoder ohne Attention")
	}
	if got := model.ParameterCount(m.Backend()); got == 0 {
		t.Error("ParameterCount() = 0")
	}

	unknown := fs.KV{"general.architecture": "transformer"}
	if _, err := model.New(ml.BackendParams{Device: "cpu"}, unknown); !errors.Is(err, model.ErrUnsupportedModel) {
		t.Errorf("Fehler = %v, erwartet ErrUnsupportedModel", err)
	}
}

func TestParameterNames(t *testing.T) {
	m, _ := newModel(t, testOptions())
	b := m.Backend()

	cases := map[string][]int{
		"encoder.embedding.weight":         {11, 6},
		"encoder.rnn.l0.weight_ih":         {16, 6},
		"encoder.rnn.l1_reverse.weight_ih": {16, 8},
		"decoder.embedding.weight":         {13, 6},
		"decoder.layers.0.weight_ih":       {32, 14},
		"decoder.layers.1.weight_hh":       {32, 8},
		"decoder.attention.l1.weight":      {8, 8},
		"decoder.attention.l2.weight":      {8, 16},
		"decoder.output.weight":            {13, 8},
		"decoder.output.bias":              {13},
	}

	for name, shape := range cases {
		p := b.Get(name)
		if p == nil {
			t.Errorf("Parameter %s fehlt", name)
			continue
		}
		if diff := cmp.Diff(shape, p.Shape()); diff != "" {
			t.Errorf("%s: Form falsch:\n%s", name, diff)
		}
	}

	if b.Get("decoder.attention.l1.bias") != nil {
		t.Error("Attention sollte keinen Bias haben")
	}
}

func TestEncoder(t *testing.T) {
	for _, typ := range []nn.CellType{nn.CellLSTM, nn.CellGRU} {
		t.Run(typ.String(), func(t *testing.T) {
			opts := testOptions()
			opts.CellType = typ
			m, ctx := newModel(t, opts)

			inputs, lengths := sourceBatch(ctx)
			enc, err := m.Encode(ctx, inputs, lengths)
			require.NoError(t, err)

			if diff := cmp.Diff([]int{2, 5, 8}, enc.Outputs.Shape()); diff != "" {
				t.Errorf("Form der Ausgaben falsch:\n%s", diff)
			}
			if diff := cmp.Diff([]int{2, 2, 8}, enc.Hidden.Shape()); diff != "" {
				t.Errorf("Form des Zustands falsch:\n%s", diff)
			}

			if typ == nn.CellGRU {
				if enc.Cell != nil {
					t.Error("GRU sollte keinen Zellzustand liefern")
				}
			} else if enc.Cell == nil || !cmp.Equal([]int{2, 2, 8}, enc.Cell.Shape()) {
				t.Errorf("Zellzustand fehlt oder hat falsche Form")
			}

			// Positionen 3 und 4 der zweiten Sequenz sind Padding
			out := enc.Outputs.Floats()
			for i, v := range out[(5+3)*8 : 10*8] {
				if v != 0 {
					t.Fatalf("Padding-Ausgabe %d = %v, erwartet 0", i, v)
				}
			}

			// Die Ausgabe am letzten gueltigen Schritt enthaelt vorne den
			// Vorwaerts-Endzustand der obersten Schicht
			hidden := enc.Hidden.Floats()
			top := hidden[1*2*8:]
			if diff := cmp.Diff(top[8:12], out[(5+2)*8:(5+2)*8+4], approx); diff != "" {
				t.Errorf("Vorwaerts-Endzustand passt nicht zur Ausgabe:\n%s", diff)
			}
			if diff := cmp.Diff(top[12:16], out[5*8+4:5*8+8], approx); diff != "" {
				t.Errorf("Rueckwaerts-Endzustand passt nicht zur Ausgabe:\n%s", diff)
			}
		})
	}
}

func TestEncoderOrder(t *testing.T) {
	m, ctx := newModel(t, testOptions())

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)

	swapped := ctx.FromInts([]int32{
		8, 9, 2, 0, 0,
		3, 4, 5, 6, 7,
	}, 2, 5)
	encSwapped, err := m.Encode(ctx, swapped, ctx.FromInts([]int32{3, 5}, 2))
	require.NoError(t, err)

	out, outSwapped := enc.Outputs.Floats(), encSwapped.Outputs.Floats()
	if diff := cmp.Diff(out[:40], outSwapped[40:], approx); diff != "" {
		t.Errorf("Ausgabe haengt von der Batch-Reihenfolge ab:\n%s", diff)
	}
	if diff := cmp.Diff(out[40:], outSwapped[:40], approx); diff != "" {
		t.Errorf("Ausgabe haengt von der Batch-Reihenfolge ab:\n%s", diff)
	}

	// Eine Sequenz allein liefert dasselbe wie im Batch
	alone, err := m.Encode(ctx, ctx.FromInts([]int32{8, 9, 2}, 1, 3), ctx.FromInts([]int32{3}, 1))
	require.NoError(t, err)

	if diff := cmp.Diff(alone.Outputs.Floats(), out[40:40+24], approx); diff != "" {
		t.Errorf("Ausgabe haengt vom Padding ab:\n%s", diff)
	}

	hidden, hiddenAlone := enc.Hidden.Floats(), alone.Hidden.Floats()
	for layer := range 2 {
		got := hidden[(layer*2+1)*8 : (layer*2+2)*8]
		if diff := cmp.Diff(hiddenAlone[layer*8:(layer+1)*8], got, approx); diff != "" {
			t.Errorf("Schicht %d: Endzustand haengt vom Padding ab:\n%s", layer, diff)
		}
	}
}

func TestEncoderErrors(t *testing.T) {
	m, ctx := newModel(t, testOptions())
	inputs, _ := sourceBatch(ctx)

	cases := []struct {
		name    string
		inputs  ml.Tensor
		lengths ml.Tensor
		want    error
	}{
		{"zero length", inputs, ctx.FromInts([]int32{5, 0}, 2), ErrInvalidLength},
		{"too long", inputs, ctx.FromInts([]int32{6, 3}, 2), ErrInvalidLength},
		{"lengths count", inputs, ctx.FromInts([]int32{5}, 1), ErrShapeMismatch},
		{"float lengths", inputs, ctx.FromFloats([]float32{5, 3}, 2), ErrShapeMismatch},
		{"float inputs", inputs.Cast(ctx, ml.DTypeF32), ctx.FromInts([]int32{5, 3}, 2), ErrShapeMismatch},
		{"empty batch", ctx.FromInts(nil, 0, 5), ctx.FromInts(nil, 0), ErrShapeMismatch},
		{"token too large", ctx.FromInts([]int32{3, 4, 11, 0, 0}, 1, 5), ctx.FromInts([]int32{3}, 1), ErrInvalidToken},
		{"negative token", ctx.FromInts([]int32{3, -1, 5}, 1, 3), ctx.FromInts([]int32{3}, 1), ErrInvalidToken},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Encode(ctx, tt.inputs, tt.lengths); !errors.Is(err, tt.want) {
				t.Errorf("Fehler = %v, erwartet %v", err, tt.want)
			}
		})
	}
}

func TestAttention(t *testing.T) {
	m, ctx := newModel(t, testOptions())

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)

	hidden := enc.Hidden.Slice(ctx, 0, 1, 2, 1).Reshape(ctx, 2, 8)
	out, weights, err := m.Decoder.Attention.Forward(ctx, hidden, enc.Outputs, lengths)
	require.NoError(t, err)

	if diff := cmp.Diff([]int{2, 8}, out.Shape()); diff != "" {
		t.Errorf("Form der Ausgabe falsch:\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 5}, weights.Shape()); diff != "" {
		t.Fatalf("Form der Gewichte falsch:\n%s", diff)
	}

	w := weights.Floats()
	for b, n := range []int{5, 3} {
		var sum float32
		for step, v := range w[b*5 : (b+1)*5] {
			if step >= n && v != 0 {
				t.Errorf("Gewicht [%d, %d] = %v hinter der Laenge %d", b, step, v, n)
			}
			if step < n && v <= 0 {
				t.Errorf("Gewicht [%d, %d] = %v, erwartet > 0", b, step, v)
			}
			sum += v
		}
		if diff := cmp.Diff(float32(1), sum, approx); diff != "" {
			t.Errorf("Gewichte von %d summieren nicht zu 1: %s", b, diff)
		}
	}

	for _, v := range out.Floats() {
		if v <= -1 || v >= 1 {
			t.Errorf("Ausgabe %v ausserhalb von (-1, 1)", v)
		}
	}

	if _, _, err := m.Decoder.Attention.Forward(ctx, hidden.Slice(ctx, 1, 0, 4, 1), enc.Outputs, lengths); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("falsche Zustandsgroesse: Fehler = %v", err)
	}
}

// TestDecode entspricht einem vollstaendigen Durchlauf: Batch 2, Laengen
// [5, 3], fuenf Decoder-Schritte
func TestDecode(t *testing.T) {
	m, ctx := newModel(t, testOptions())

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)

	state := m.InitialState(ctx, enc)
	tokens := ctx.FromInts([]int32{1, 1}, 2)
	for step := range 5 {
		out, err := m.Step(ctx, tokens, state, enc, lengths)
		require.NoError(t, err)

		if diff := cmp.Diff([]int{2, 13}, out.LogProbs.Shape()); diff != "" {
			t.Fatalf("Schritt %d: Form falsch:\n%s", step, diff)
		}

		logProbs := out.LogProbs.Floats()
		next := make([]int32, 2)
		for b := range 2 {
			var sum float32
			best := 0
			for v, lp := range logProbs[b*13 : (b+1)*13] {
				sum += math32.Exp(lp)
				if lp > logProbs[b*13+best] {
					best = v
				}
			}
			if diff := cmp.Diff(float32(1), sum, approx); diff != "" {
				t.Errorf("Schritt %d, Satz %d: Wahrscheinlichkeiten summieren nicht zu 1: %s", step, b, diff)
			}
			next[b] = int32(best)
		}

		if w := out.Attention.Floats(); w[8] != 0 || w[9] != 0 {
			t.Errorf("Schritt %d: Attention auf Padding: %v", step, w[5:])
		}

		if diff := cmp.Diff([]int{2, 2, 8}, out.State.Hidden.Shape()); diff != "" {
			t.Errorf("Schritt %d: Zustandsform falsch:\n%s", step, diff)
		}

		state = out.State
		tokens = ctx.FromInts(next, 2)
	}
}

func TestDecoderIsPure(t *testing.T) {
	m, ctx := newModel(t, testOptions())

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)

	state := m.InitialState(ctx, enc)
	before := state.Hidden.Floats()
	tokens := ctx.FromInts([]int32{4, 5}, 2, 1)

	first, err := m.Step(ctx, tokens, state, enc, lengths)
	require.NoError(t, err)
	second, err := m.Step(ctx, tokens, state, enc, lengths)
	require.NoError(t, err)

	if diff := cmp.Diff(first.LogProbs.Floats(), second.LogProbs.Floats()); diff != "" {
		t.Errorf("gleiche Eingaben, unterschiedliche Ausgaben:\n%s", diff)
	}
	if diff := cmp.Diff(before, state.Hidden.Floats()); diff != "" {
		t.Errorf("Eingabezustand wurde veraendert:\n%s", diff)
	}
}

func TestDecoderWithoutAttention(t *testing.T) {
	opts := testOptions()
	opts.Attention = false
	opts.CellType = nn.CellGRU
	m, ctx := newModel(t, opts)

	if m.Decoder.Attention != nil {
		t.Fatal("Decoder sollte keine Attention haben")
	}
	if diff := cmp.Diff([]int{32, 6}, m.Backend().Get("decoder.layers.0.weight_ih").Shape()); diff != "" {
		t.Errorf("Eingangsgroesse der ersten Schicht falsch:\n%s", diff)
	}

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)

	state := m.InitialState(ctx, enc)
	if cell := state.Cell.Floats(); cell[0] != 0 {
		t.Error("Zellzustand nach GRU-Encoder sollte 0 sein")
	}

	state.Context = nil
	out, err := m.Step(ctx, ctx.FromInts([]int32{1, 1}, 2), state, enc, lengths)
	require.NoError(t, err)

	if out.Attention != nil {
		t.Error("Attention-Gewichte ohne Attention")
	}

	// Hidden (layers, batch, hidden): die oberste Schicht beginnt bei 2·8
	hidden := out.State.Hidden.Floats()
	if diff := cmp.Diff(hidden[16:], out.State.Context.Floats()); diff != "" {
		t.Errorf("Kontext ist nicht der oberste Zustand:\n%s", diff)
	}
}

func TestDecoderErrors(t *testing.T) {
	m, ctx := newModel(t, testOptions())

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)
	state := m.InitialState(ctx, enc)

	wrongHidden := state
	wrongHidden.Hidden = state.Hidden.Slice(ctx, 0, 0, 1, 1)

	noContext := state
	noContext.Context = nil

	cases := []struct {
		name   string
		tokens ml.Tensor
		state  DecoderState
		want   error
	}{
		{"tokens matrix", ctx.FromInts([]int32{1, 1, 1, 1}, 2, 2), state, ErrShapeMismatch},
		{"float tokens", ctx.FromFloats([]float32{1, 1}, 2), state, ErrShapeMismatch},
		{"batch", ctx.FromInts([]int32{1, 1, 1}, 3), state, ErrShapeMismatch},
		{"empty batch", ctx.FromInts(nil, 0), state, ErrShapeMismatch},
		{"hidden", ctx.FromInts([]int32{1, 1}, 2), wrongHidden, ErrShapeMismatch},
		{"context", ctx.FromInts([]int32{1, 1}, 2), noContext, ErrShapeMismatch},
		{"token too large", ctx.FromInts([]int32{1, 13}, 2), state, ErrInvalidToken},
		{"negative token", ctx.FromInts([]int32{-2, 1}, 2), state, ErrInvalidToken},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Step(ctx, tt.tokens, tt.state, enc, lengths); !errors.Is(err, tt.want) {
				t.Errorf("Fehler = %v, erwartet %v", err, tt.want)
			}
		})
	}
}

func TestGreedy(t *testing.T) {
	m, ctx := newModel(t, testOptions())
	inputs, lengths := sourceBatch(ctx)

	tr, err := m.Greedy(ctx, inputs, lengths, DecodeOptions{Start: 1, End: -1, MaxSteps: 4})
	require.NoError(t, err)

	require.Len(t, tr.Tokens, 2)
	require.Len(t, tr.Attention, 4)
	for b, tokens := range tr.Tokens {
		if len(tokens) != 4 {
			t.Errorf("Satz %d: %d Tokens, erwartet 4", b, len(tokens))
		}
		if tr.Scores[b] >= 0 {
			t.Errorf("Satz %d: Score %v, erwartet < 0", b, tr.Scores[b])
		}
	}

	// Mit dem ersten erzeugten Token als Ende bricht die Dekodierung nach einem Schritt ab
	end := tr.Tokens[0][0]
	stopped, err := m.Greedy(ctx, inputs, lengths, DecodeOptions{Start: 1, End: end, MaxSteps: 4})
	require.NoError(t, err)
	if got := stopped.Tokens[0][0]; got != end {
		t.Errorf("erstes Token = %d, erwartet %d", got, end)
	}
	for _, tok := range stopped.Tokens[0][1:] {
		if tok != int32(m.Options.PadIndex) {
			t.Errorf("nach dem Ende erzeugt: %v", stopped.Tokens[0])
			break
		}
	}

	if _, err := m.Greedy(ctx, inputs, lengths, DecodeOptions{MaxSteps: 0}); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("MaxSteps 0: Fehler = %v, erwartet ErrInvalidLength", err)
	}

	for _, opts := range []DecodeOptions{
		{Start: 13, End: -1, MaxSteps: 2},
		{Start: -1, End: -1, MaxSteps: 2},
		{Start: 1, End: 50, MaxSteps: 2},
	} {
		if _, err := m.Greedy(ctx, inputs, lengths, opts); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%+v: Fehler = %v, erwartet ErrInvalidToken", opts, err)
		}
	}

	if !ctx.GradEnabled() {
		t.Error("Greedy sollte die Gradienten-Aufzeichnung wiederherstellen")
	}
}

// TestGreedyRecordsNothing prueft, dass die Dekodierung keine Gradienten aufzeichnet
func TestGreedyRecordsNothing(t *testing.T) {
	m, ctx := newModel(t, testOptions())
	inputs, lengths := sourceBatch(ctx)

	tr, err := m.Greedy(ctx, inputs, lengths, DecodeOptions{Start: 1, End: -1, MaxSteps: 3})
	require.NoError(t, err)

	for step, weights := range tr.Attention {
		if weights.RequiresGrad() {
			t.Errorf("Schritt %d: Attention-Gewichte wurden aufgezeichnet", step)
		}
	}

	ctx.SetGradEnabled(false)
	_, err = m.Greedy(ctx, inputs, lengths, DecodeOptions{Start: 1, End: -1, MaxSteps: 1})
	require.NoError(t, err)
	if ctx.GradEnabled() {
		t.Error("Greedy sollte einen abgeschalteten Modus nicht einschalten")
	}
}

// TestPaddingGradient prueft, dass die Padding-Zeilen beider Embeddings
// keinen Gradienten erhalten
func TestPaddingGradient(t *testing.T) {
	m, ctx := newModel(t, testOptions())
	ctx.SetTraining(true)

	inputs, lengths := sourceBatch(ctx)
	enc, err := m.Encode(ctx, inputs, lengths)
	require.NoError(t, err)

	targets := [][]int32{{4, 5}, {6, 0}, {7, 0}}
	state := m.InitialState(ctx, enc)
	tokens := ctx.FromInts([]int32{1, 1}, 2)

	var loss ml.Tensor
	for _, target := range targets {
		out, err := m.Step(ctx, tokens, state, enc, lengths)
		require.NoError(t, err)

		stepLoss := nn.NLLLoss(ctx, out.LogProbs, ctx.FromInts(target, 2), m.Options.PadIndex)
		if loss == nil {
			loss = stepLoss
		} else {
			loss = loss.Add(ctx, stepLoss)
		}

		state = out.State
		tokens = ctx.FromInts(target, 2)
	}

	ctx.Backward(loss)

	for _, name := range []string{"encoder.embedding.weight", "decoder.embedding.weight"} {
		grad := m.Backend().Get(name).Grad()
		require.NotNil(t, grad, name)

		values := grad.Floats()
		dim := m.Options.EmbedDim
		pad := m.Options.PadIndex
		if diff := cmp.Diff(make([]float32, dim), values[pad*dim:(pad+1)*dim]); diff != "" {
			t.Errorf("%s: Padding-Zeile erhaelt Gradient:\n%s", name, diff)
		}
	}

	grad := m.Backend().Get("encoder.embedding.weight").Grad().Floats()
	if cmp.Equal(make([]float32, 6), grad[3*6:4*6]) {
		t.Error("verwendetes Token 3 erhaelt keinen Gradienten")
	}
}

func TestValidate(t *testing.T) {
	m, _ := newModel(t, testOptions())
	require.NoError(t, m.Validate())

	m.Decoder.HiddenSize = 5
	if err := m.Validate(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Fehler = %v, erwartet ErrShapeMismatch", err)
	}
}
