// config.go - Haupt-Konfigurationsfunktionen
//
// Dieses Modul enthaelt:
// - Device: Gibt das Compute-Geraet zurueck (NMT_DEVICE)
// - Seed: Gibt den Zufalls-Seed zurueck (NMT_SEED)
// - LogLevel: Gibt Log-Level zurueck (NMT_DEBUG)
// - Var: Liest eine Environment-Variable
//
// Weitere Konfigurationen sind ausgelagert:
// - config_model.go: Modell-Defaults (Padding-Index, Zelltyp, Threads)
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Device gibt das Compute-Geraet zurueck
// Konfigurierbar via NMT_DEVICE, z.B. "cpu" oder "cpu:0"
// Default: cpu
func Device() string {
	if s := Var("NMT_DEVICE"); s != "" {
		return strings.ToLower(s)
	}

	return "cpu"
}

// Seed gibt den Seed fuer Initialisierung und Dropout zurueck
// Konfigurierbar via NMT_SEED
// 0 = zufaelliger Seed (Default)
var Seed = Uint64("NMT_SEED", 0)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via NMT_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("NMT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
