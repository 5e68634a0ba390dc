// config_model.go - Modell-Defaults aus der Umgebung
//
// Dieses Modul enthaelt:
// - PadIndex: Index des Padding-Tokens
// - CellType: RNN-Zelltyp des Encoders
// - NoAttention: Deaktiviert Attention im Decoder
// - NumThreads: Parallelitaet des Backends
package envconfig

var (
	// PadIndex ist der Vokabular-Index des Padding-Tokens
	PadIndex = Uint("NMT_PAD_IDX", 0)

	// CellType ist der RNN-Zelltyp des Encoders ("lstm" oder "gru")
	CellType = String("NMT_CELL_TYPE")

	// NoAttention deaktiviert Attention im Decoder
	NoAttention = Bool("NMT_NO_ATTENTION")

	// NumThreads begrenzt die Threads des Backends (0 = alle CPUs)
	NumThreads = Uint("NMT_NUM_THREADS", 0)
)
