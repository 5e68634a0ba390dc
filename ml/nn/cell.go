// cell.go - Rekurrente Einzelschritt-Zellen
//
// Hauptstrukturen:
//   - CellType: Geschlossene Menge der Zelltypen (LSTM, GRU)
//   - Cell: Gemeinsame Schnittstelle eines Zeitschritts
//   - LSTMCell, GRUCell: Implementierungen im Gate-Layout (i, f, g, o) bzw. (r, z, n)
package nn

import (
	"fmt"
	"strings"

	"github.com/7blacky7/nmt/ml"
)

// CellType waehlt die rekurrente Zelle eines RNN
type CellType int

const (
	CellLSTM CellType = iota
	CellGRU
)

// ParseCellType liest "lstm" oder "gru"; ein leerer String ergibt LSTM
func ParseCellType(s string) (CellType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lstm":
		return CellLSTM, nil
	case "gru":
		return CellGRU, nil
	default:
		return 0, fmt.Errorf("unknown cell type %q", s)
	}
}

func (c CellType) String() string {
	switch c {
	case CellLSTM:
		return "lstm"
	case CellGRU:
		return "gru"
	default:
		return fmt.Sprintf("CellType(%d)", int(c))
	}
}

// State ist der Zustand einer Zelle fuer einen Batch. Cell ist bei GRU nil.
type State struct {
	Hidden ml.Tensor // (batch, hidden)
	Cell   ml.Tensor // (batch, hidden)
}

// Cell berechnet einen Zeitschritt
type Cell interface {
	Forward(ctx ml.Context, x ml.Tensor, s State) State
	HiddenSize() int
}

// NewCell erstellt eine Zelle des Typs typ
func NewCell(b ml.Backend, name string, typ CellType, inputSize, hiddenSize int) Cell {
	switch typ {
	case CellGRU:
		return NewGRUCell(b, name, inputSize, hiddenSize)
	default:
		return NewLSTMCell(b, name, inputSize, hiddenSize)
	}
}

// LSTMCell ist eine LSTM-Zelle mit den Gates (i, f, g, o) in dieser Reihenfolge
type LSTMCell struct {
	WeightIH ml.Tensor // (4·hidden, input)
	WeightHH ml.Tensor // (4·hidden, hidden)
	BiasIH   ml.Tensor // (4·hidden)
	BiasHH   ml.Tensor // (4·hidden)

	hiddenSize int
}

// NewLSTMCell legt die Gewichte unter name.weight_ih, name.weight_hh usw. an
func NewLSTMCell(b ml.Backend, name string, inputSize, hiddenSize int) *LSTMCell {
	return &LSTMCell{
		WeightIH:   uniform(b, name+".weight_ih", 4*hiddenSize, inputSize),
		WeightHH:   uniform(b, name+".weight_hh", 4*hiddenSize, hiddenSize),
		BiasIH:     uniform(b, name+".bias_ih", 4*hiddenSize),
		BiasHH:     uniform(b, name+".bias_hh", 4*hiddenSize),
		hiddenSize: hiddenSize,
	}
}

// HiddenSize gibt die Groesse des Zustands zurueck
func (c *LSTMCell) HiddenSize() int {
	return c.hiddenSize
}

// Forward berechnet (h', c') aus x (batch, input) und s
func (c *LSTMCell) Forward(ctx ml.Context, x ml.Tensor, s State) State {
	gates := c.WeightIH.Mulmat(ctx, x).Add(ctx, c.BiasIH).
		Add(ctx, c.WeightHH.Mulmat(ctx, s.Hidden).Add(ctx, c.BiasHH))

	h := c.hiddenSize
	i := gates.Slice(ctx, 1, 0, h, 1).Sigmoid(ctx)
	f := gates.Slice(ctx, 1, h, 2*h, 1).Sigmoid(ctx)
	g := gates.Slice(ctx, 1, 2*h, 3*h, 1).Tanh(ctx)
	o := gates.Slice(ctx, 1, 3*h, 4*h, 1).Sigmoid(ctx)

	cell := f.Mul(ctx, s.Cell).Add(ctx, i.Mul(ctx, g))
	return State{
		Hidden: o.Mul(ctx, cell.Tanh(ctx)),
		Cell:   cell,
	}
}

// GRUCell ist eine GRU-Zelle mit den Gates (r, z, n) in dieser Reihenfolge
type GRUCell struct {
	WeightIH ml.Tensor // (3·hidden, input)
	WeightHH ml.Tensor // (3·hidden, hidden)
	BiasIH   ml.Tensor // (3·hidden)
	BiasHH   ml.Tensor // (3·hidden)

	hiddenSize int
}

// NewGRUCell legt die Gewichte unter name.weight_ih, name.weight_hh usw. an
func NewGRUCell(b ml.Backend, name string, inputSize, hiddenSize int) *GRUCell {
	return &GRUCell{
		WeightIH:   uniform(b, name+".weight_ih", 3*hiddenSize, inputSize),
		WeightHH:   uniform(b, name+".weight_hh", 3*hiddenSize, hiddenSize),
		BiasIH:     uniform(b, name+".bias_ih", 3*hiddenSize),
		BiasHH:     uniform(b, name+".bias_hh", 3*hiddenSize),
		hiddenSize: hiddenSize,
	}
}

// HiddenSize gibt die Groesse des Zustands zurueck
func (c *GRUCell) HiddenSize() int {
	return c.hiddenSize
}

// Forward berechnet h' aus x (batch, input) und s.Hidden
func (c *GRUCell) Forward(ctx ml.Context, x ml.Tensor, s State) State {
	gi := c.WeightIH.Mulmat(ctx, x).Add(ctx, c.BiasIH)
	gh := c.WeightHH.Mulmat(ctx, s.Hidden).Add(ctx, c.BiasHH)

	h := c.hiddenSize
	r := gi.Slice(ctx, 1, 0, h, 1).Add(ctx, gh.Slice(ctx, 1, 0, h, 1)).Sigmoid(ctx)
	z := gi.Slice(ctx, 1, h, 2*h, 1).Add(ctx, gh.Slice(ctx, 1, h, 2*h, 1)).Sigmoid(ctx)
	n := gi.Slice(ctx, 1, 2*h, 3*h, 1).Add(ctx, r.Mul(ctx, gh.Slice(ctx, 1, 2*h, 3*h, 1))).Tanh(ctx)

	// h' = (1 - z)·n + z·h = n + z·(h - n)
	return State{Hidden: n.Add(ctx, z.Mul(ctx, s.Hidden.Sub(ctx, n)))}
}
