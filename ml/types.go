// types.go - Datentypen und Konstanten fuer ML-Operationen
// Dieses Modul definiert den DType der Tensor-Elemente.
package ml

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeI32
)

// String gibt den kurzen Namen des Datentyps zurueck
func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeI32:
		return "i32"
	default:
		return "other"
	}
}

// Size gibt die Groesse eines Elements in Bytes zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF16:
		return 2
	default:
		return 0
	}
}
