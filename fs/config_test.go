package fs

import (
	"slices"
	"testing"
)

func TestKV(t *testing.T) {
	kv := KV{
		"general.architecture":     "seq2seq",
		"seq2seq.embedding_length": uint32(32),
		"seq2seq.dropout":          float32(0.1),
		"seq2seq.attention":        true,
		"seq2seq.cell_type":        "gru",
		"other.embedding_length":   uint32(7),
	}

	if got := kv.Architecture(); got != "seq2seq" {
		t.Errorf("Architecture() = %q, erwartet seq2seq", got)
	}
	if got := kv.Uint("embedding_length"); got != 32 {
		t.Errorf("Uint(embedding_length) = %d, erwartet 32", got)
	}
	if got := kv.Float("dropout"); got != 0.1 {
		t.Errorf("Float(dropout) = %v, erwartet 0.1", got)
	}
	if !kv.Bool("attention") {
		t.Error("Bool(attention) sollte true sein")
	}
	if got := kv.String("cell_type"); got != "gru" {
		t.Errorf("String(cell_type) = %q, erwartet gru", got)
	}

	// Fehlende Schluessel und falsche Typen liefern den Default
	if got := kv.Uint("block_count", 2); got != 2 {
		t.Errorf("Uint(block_count, 2) = %d, erwartet 2", got)
	}
	if got := kv.Uint("cell_type", 5); got != 5 {
		t.Errorf("Uint(cell_type, 5) = %d, erwartet 5", got)
	}
	if got := kv.Bool("missing"); got {
		t.Error("Bool(missing) sollte false sein")
	}

	if keys := slices.Collect(kv.Keys()); len(keys) != kv.Len() || !slices.IsSorted(keys) {
		t.Errorf("Keys() = %v, erwartet %d sortierte Schluessel", keys, kv.Len())
	}
}

func TestKVUnknownArchitecture(t *testing.T) {
	kv := KV{"embedding_length": uint32(3)}
	if got := kv.Architecture(); got != "unknown" {
		t.Errorf("Architecture() = %q, erwartet unknown", got)
	}
	if got := kv.Uint("embedding_length", 9); got != 9 {
		t.Errorf("Uint ohne Architektur-Praefix = %d, erwartet 9", got)
	}
}
