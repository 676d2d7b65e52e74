// Package web serves the LED control UI and its small JSON API.
package web

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"

	"glowd/internal/led"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Controller is what the API needs from the LED layer.
type Controller interface {
	Snapshot() led.Snapshot
}

func Handler(ctl Controller, settings SettingsStore) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := ctl.Snapshot()
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	// Settings API (read/write YAML config). Changes are applied
	// immediately, then persisted.
	mux.Handle("/api/settings", settings.Handler())

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err == nil {
		mux.Handle("/", http.FileServer(http.FS(assetsFS)))
	}

	return mux
}
