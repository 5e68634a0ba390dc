// Package fs - Modell-Konfiguration als Key-Value Metadaten
//
// Dieses Modul enthaelt:
// - Config: Interface fuer Architektur und typisierte Getter
// - KV: Map-Implementierung, Schluessel ohne "general."-Praefix werden
//   mit der Architektur qualifiziert ("seq2seq.embedding_length")
package fs

import (
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Config beschreibt die Hyperparameter eines Modells
type Config interface {
	Architecture() string
	String(key string, defaultValue ...string) string
	Uint(key string, defaultValue ...uint32) uint32
	Float(key string, defaultValue ...float32) float32
	Bool(key string, defaultValue ...bool) bool
}

// KV repraesentiert Key-Value Metadaten
type KV map[string]any

// Architecture gibt die Modell-Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// String gibt einen String-Wert zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

// Uint gibt einen uint32-Wert zurueck
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Float gibt einen float32-Wert zurueck
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Bool gibt einen Bool-Wert zurueck
func (kv KV) Bool(key string, defaultValue ...bool) bool {
	val, _ := keyValue(kv, key, append(defaultValue, false)...)
	return val
}

// Len gibt die Anzahl der Eintraege zurueck
func (kv KV) Len() int {
	return len(kv)
}

// Keys gibt die Schluessel sortiert zurueck
func (kv KV) Keys() iter.Seq[string] {
	return slices.Values(slices.Sorted(maps.Keys(kv)))
}

// Value gibt den rohen Wert eines Schluessels zurueck
func (kv KV) Value(key string) any {
	return kv[key]
}

type valueTypes interface {
	uint32 | float32 | string | bool
}

func keyValue[T valueTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !strings.HasPrefix(key, "general.") {
		key = kv.Architecture() + "." + key
	}

	if val, ok := kv[key].(T); ok {
		return val, true
	}

	slog.Debug("key with type not found", "key", key, "default", defaultValue[0])
	return defaultValue[0], false
}
