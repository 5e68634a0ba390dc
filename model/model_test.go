// MODUL: model_test
// ZWECK: Tests fuer Registrierung und Erstellung von Modellen
// INPUT: Minimales Testmodell
// OUTPUT: Testresultate
// NEBENEFFEKTE: Registriert die Architektur "test"
// ABHAENGIGKEITEN: testing, testify
// HINWEISE: Validator-Fehler muessen das Backend schliessen

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7blacky7/nmt/fs"
	"github.com/7blacky7/nmt/ml"
)

var errInvalid = errors.New("invalid")

type testModel struct {
	Base
	valid bool
}

func (m *testModel) Validate() error {
	if !m.valid {
		return errInvalid
	}
	return nil
}

func init() {
	Register("test", func(b ml.Backend, c fs.Config) (Model, error) {
		b.NewParameter("w", 2, 3)
		b.NewParameter("b", 3)
		return &testModel{Base: NewBase(b, c), valid: c.Bool("valid")}, nil
	})
}

func TestNew(t *testing.T) {
	m, err := New(ml.BackendParams{Device: "cpu", Seed: 1}, fs.KV{
		"general.architecture": "test",
		"test.valid":           true,
	})
	require.NoError(t, err)
	defer m.Backend().Close()

	if got := ParameterCount(m.Backend()); got != 9 {
		t.Errorf("ParameterCount() = %d, erwartet 9", got)
	}
	if got := m.Config().Architecture(); got != "test" {
		t.Errorf("Architecture() = %q, erwartet test", got)
	}
}

func TestNewErrors(t *testing.T) {
	cases := []struct {
		name   string
		params ml.BackendParams
		config fs.KV
		want   error
	}{
		{"unknown architecture", ml.BackendParams{Device: "cpu"}, fs.KV{"general.architecture": "rnnlm"}, ErrUnsupportedModel},
		{"unknown device", ml.BackendParams{Device: "cuda"}, fs.KV{"general.architecture": "test"}, ml.ErrUnsupportedBackend},
		{"validation", ml.BackendParams{Device: "cpu"}, fs.KV{"general.architecture": "test"}, errInvalid},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.params, tt.config); !errors.Is(err, tt.want) {
				t.Errorf("Fehler = %v, erwartet %v", err, tt.want)
			}
		})
	}
}

func TestRegisterTwice(t *testing.T) {
	require.Panics(t, func() {
		Register("test", nil)
	})
}
