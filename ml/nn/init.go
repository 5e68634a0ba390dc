// Package nn - Schichten fuer Sequenz-zu-Sequenz-Modelle
//
// Alle Konstruktoren legen ihre Gewichte als benannte Parameter im Backend an
// und initialisieren sie gleichverteilt in [-InitRange, InitRange]. Nur
// NewLinearFanIn verwendet die Grenze 1/√in.
//
// Hauptkomponenten:
// - Embedding: Lookup-Tabelle mit Padding-Zeile
// - Linear: Affine Projektion
// - LSTMCell/GRUCell: Einzelschritt-Zellen
// - RNN: Mehrschichtiges, optional bidirektionales RNN auf PackedSequence
// - SequenceMask: Maske gueltiger Positionen
// - NLLLoss: Negative Log-Likelihood
package nn

import (
	"math"

	"github.com/7blacky7/nmt/ml"
)

// InitRange ist die Grenze der gleichverteilten Initialisierung
const InitRange = 0.1

// uniform legt einen Parameter an und fuellt ihn gleichverteilt in [-InitRange, InitRange]
func uniform(b ml.Backend, name string, shape ...int) ml.Tensor {
	return uniformIn(b, name, InitRange, shape...)
}

// fanIn ist die Grenze 1/√in der Standard-Initialisierung affiner Schichten
func fanIn(in int) float64 {
	return 1 / math.Sqrt(float64(in))
}

func uniformIn(b ml.Backend, name string, bound float64, shape ...int) ml.Tensor {
	t := b.NewParameter(name, shape...)

	rng := b.Rand()
	values := make([]float32, len(t.Floats()))
	for i := range values {
		values[i] = float32((rng.Float64()*2 - 1) * bound)
	}

	t.FromFloats(values)
	return t
}
