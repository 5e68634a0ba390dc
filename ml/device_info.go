// device_info.go
// Dieses Modul enthaelt die DeviceInfo-Struktur und das Parsen von
// Geraete-Bezeichnern wie "cpu" oder "cuda:1".

package ml

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// DeviceInfo beschreibt das Geraet, auf dem ein Backend rechnet.
type DeviceInfo struct {
	// Library is the backend library that drives the device, e.g. "cpu"
	Library string `json:"library"`

	// ID is the index of the device within its library
	ID int `json:"id"`

	// Name is the name of the device as labeled by the backend
	Name string `json:"name"`

	// Description is the longer user-friendly identification of the device
	Description string `json:"description"`

	// ThreadCount is the number of threads the backend may use
	ThreadCount int `json:"threads,omitempty"`
}

// String gibt die kanonische Geraete-Bezeichnung zurueck ("cpu:0")
func (d DeviceInfo) String() string {
	return d.Library + ":" + strconv.Itoa(d.ID)
}

// LogValue implementiert slog.LogValuer
func (d DeviceInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("device", d.String()),
		slog.String("name", d.Name),
		slog.Int("threads", d.ThreadCount),
	)
}

// ParseDevice zerlegt eine Geraete-Bezeichnung in Library und Index.
// Ohne Index wird 0 angenommen. Die Library wird klein geschrieben.
func ParseDevice(s string) (library string, id int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", 0, fmt.Errorf("empty device")
	}

	library, index, ok := strings.Cut(s, ":")
	if !ok {
		return library, 0, nil
	}

	id, err = strconv.Atoi(index)
	if err != nil || id < 0 {
		return "", 0, fmt.Errorf("invalid device index %q", index)
	}

	return library, id, nil
}
