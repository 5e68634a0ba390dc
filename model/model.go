// Package model - Model-Interface und Initialisierung
//
// Dieses Paket definiert das Model-Interface und stellt Funktionen
// zur Initialisierung und Verwaltung von ML-Modellen bereit.
//
// Hauptkomponenten:
// - Model: Interface für alle Modell-Architekturen
// - Base: Basis-Implementierung für gemeinsame Funktionalität
// - New: Erstellt neue Model-Instanzen mit frisch initialisierten Gewichten
// - Register: Registriert Modell-Konstruktoren

package model

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/7blacky7/nmt/fs"
	"github.com/7blacky7/nmt/ml"
	_ "github.com/7blacky7/nmt/ml/backend"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel = errors.New("model not supported")
)

// Model definiert das Interface für spezifische Modell-Architekturen
type Model interface {
	Backend() ml.Backend
	Config() fs.Config
}

// Validator ist ein optionales Interface für Post-Init-Validierung
type Validator interface {
	Validate() error
}

// Base implementiert gemeinsame Felder und Methoden für alle Modelle
type Base struct {
	b ml.Backend
	c fs.Config
}

// NewBase erstellt die Basis eines Modells
func NewBase(b ml.Backend, c fs.Config) Base {
	return Base{b: b, c: c}
}

// Backend gibt das Backend zurück, das die Gewichte des Modells hält
func (m *Base) Backend() ml.Backend {
	return m.b
}

// Config gibt die Modell-Konfiguration zurück
func (m *Base) Config() fs.Config {
	return m.c
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(ml.Backend, fs.Config) (Model, error))

// Register registriert einen Modell-Konstruktor für eine Architektur
func Register(name string, f func(ml.Backend, fs.Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// New erstellt ein Backend für params und darin ein Modell der in c
// angegebenen Architektur
func New(params ml.BackendParams, c fs.Config) (Model, error) {
	b, err := ml.NewBackend(params)
	if err != nil {
		return nil, err
	}

	m, err := modelForArch(b, c)
	if err != nil {
		b.Close()
		return nil, err
	}

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			b.Close()
			return nil, err
		}
	}

	slog.Debug("model created", "architecture", c.Architecture(), "parameters", ParameterCount(b), "device", b.Device())
	return m, nil
}

// modelForArch erstellt ein Model basierend auf der Architektur
func modelForArch(b ml.Backend, c fs.Config) (Model, error) {
	f, ok := models[c.Architecture()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, c.Architecture())
	}

	return f(b, c)
}

// ParameterCount zählt die Elemente aller Parameter eines Backends
func ParameterCount(b ml.Backend) uint64 {
	var n uint64
	for _, p := range b.Parameters() {
		count := uint64(1)
		for _, d := range p.Tensor.Shape() {
			count *= uint64(d)
		}
		n += count
	}

	return n
}
