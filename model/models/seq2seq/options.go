// Modul: options.go
// Beschreibung: Hyperparameter des Seq2Seq-Modells
// Hauptstrukturen:
//   - Options: Explizite Konfiguration fuer Encoder und Decoder
//   - OptionsFromConfig: Liest die Optionen aus einer fs.Config

package seq2seq

import (
	"errors"
	"fmt"

	"github.com/7blacky7/nmt/fs"
	"github.com/7blacky7/nmt/ml/nn"
)

// Fehler-Definitionen
var (
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidLength = errors.New("invalid sequence length")
	ErrInvalidToken  = errors.New("token outside vocabulary")
)

// checkTokens prueft, dass jedes Token in [0, vocab) liegt
func checkTokens(tokens []int32, vocab int) error {
	for i, tok := range tokens {
		if tok < 0 || int(tok) >= vocab {
			return fmt.Errorf("token %d at position %d, vocabulary size %d: %w", tok, i, vocab, ErrInvalidToken)
		}
	}
	return nil
}

// Standardwerte der Dropout-Raten
const (
	DefaultDropout    = 0.1
	DefaultRNNDropout = 0.2
)

// Options enthaelt die Hyperparameter von Encoder und Decoder
type Options struct {
	SourceVocabSize int
	TargetVocabSize int
	EmbedDim        int

	// HiddenSize ist die Groesse einer Encoder-Richtung. Der Decoder
	// arbeitet mit 2·HiddenSize.
	HiddenSize int
	NumLayers  int
	CellType   nn.CellType
	Attention  bool
	PadIndex   int

	Dropout    float32 // Embeddings und Decoder-Schichten
	RNNDropout float32 // Zwischen den Encoder-Schichten
}

// DecoderHiddenSize gibt die Zustandsgroesse des Decoders zurueck
func (o Options) DecoderHiddenSize() int {
	return 2 * o.HiddenSize
}

// Validate prueft die Optionen auf gueltige Werte
func (o Options) Validate() error {
	switch {
	case o.SourceVocabSize <= 0 || o.TargetVocabSize <= 0:
		return fmt.Errorf("seq2seq: vocabulary sizes must be positive, got %d and %d", o.SourceVocabSize, o.TargetVocabSize)
	case o.EmbedDim <= 0 || o.HiddenSize <= 0:
		return fmt.Errorf("seq2seq: embedding and hidden sizes must be positive, got %d and %d", o.EmbedDim, o.HiddenSize)
	case o.NumLayers <= 0:
		return fmt.Errorf("seq2seq: number of layers must be positive, got %d", o.NumLayers)
	case o.PadIndex < 0 || o.PadIndex >= min(o.SourceVocabSize, o.TargetVocabSize):
		return fmt.Errorf("seq2seq: padding index %d outside vocabulary", o.PadIndex)
	case o.Dropout < 0 || o.Dropout >= 1 || o.RNNDropout < 0 || o.RNNDropout >= 1:
		return fmt.Errorf("seq2seq: dropout rates must be in [0, 1), got %v and %v", o.Dropout, o.RNNDropout)
	}

	return nil
}

// OptionsFromConfig liest die Optionen aus c. Schluessel ohne Praefix
// werden mit der Architektur qualifiziert, z.B. "seq2seq.hidden_size".
func OptionsFromConfig(c fs.Config) (Options, error) {
	typ, err := nn.ParseCellType(c.String("cell_type", "lstm"))
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		SourceVocabSize: int(c.Uint("source.vocab_size")),
		TargetVocabSize: int(c.Uint("target.vocab_size")),
		EmbedDim:        int(c.Uint("embedding_length")),
		HiddenSize:      int(c.Uint("hidden_size")),
		NumLayers:       int(c.Uint("block_count", 1)),
		CellType:        typ,
		Attention:       c.Bool("attention", true),
		PadIndex:        int(c.Uint("general.pad_token_id")),
		Dropout:         c.Float("dropout", DefaultDropout),
		RNNDropout:      c.Float("rnn_dropout", DefaultRNNDropout),
	}

	return opts, opts.Validate()
}

// Config erzeugt die fs.KV-Darstellung der Optionen
func (o Options) Config() fs.KV {
	return fs.KV{
		"general.architecture":      "seq2seq",
		"general.pad_token_id":      uint32(o.PadIndex),
		"seq2seq.source.vocab_size": uint32(o.SourceVocabSize),
		"seq2seq.target.vocab_size": uint32(o.TargetVocabSize),
		"seq2seq.embedding_length":  uint32(o.EmbedDim),
		"seq2seq.hidden_size":       uint32(o.HiddenSize),
		"seq2seq.block_count":       uint32(o.NumLayers),
		"seq2seq.cell_type":         o.CellType.String(),
		"seq2seq.attention":         o.Attention,
		"seq2seq.dropout":           o.Dropout,
		"seq2seq.rnn_dropout":       o.RNNDropout,
	}
}
