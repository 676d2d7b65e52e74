package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"glowd/internal/config"
)

// SettingsPayload is the GET response shape.
type SettingsPayload struct {
	ColorR        int     `json:"color_r"`
	ColorG        int     `json:"color_g"`
	ColorB        int     `json:"color_b"`
	Breathe       bool    `json:"breathe"`
	BreatheRateHz float64 `json:"breathe_rate_hz"`
	FrequencyHz   float64 `json:"frequency_hz"`
}

// SettingsPayloadIn is the strict POST schema.
//
// All fields are required (no partial updates) to avoid hidden defaults and
// prevent accidental schema drift.
type SettingsPayloadIn struct {
	ColorR        *int     `json:"color_r"`
	ColorG        *int     `json:"color_g"`
	ColorB        *int     `json:"color_b"`
	Breathe       *bool    `json:"breathe"`
	BreatheRateHz *float64 `json:"breathe_rate_hz"`
	FrequencyHz   *float64 `json:"frequency_hz"`
}

func decodeSettingsPayloadIn(body []byte) (SettingsPayloadIn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var out SettingsPayloadIn
	if err := dec.Decode(&out); err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}
	return out, nil
}

func validateSettingsPayloadIn(p SettingsPayloadIn) error {
	for _, c := range []struct {
		name string
		v    *int
	}{
		{"color_r", p.ColorR}, {"color_g", p.ColorG}, {"color_b", p.ColorB},
	} {
		if c.v == nil {
			return fmt.Errorf("%s is required", c.name)
		}
		if *c.v < 0 || *c.v > 255 {
			return fmt.Errorf("%s must be in 0..255", c.name)
		}
	}
	if p.Breathe == nil {
		return errors.New("breathe is required")
	}
	if p.BreatheRateHz == nil {
		return errors.New("breathe_rate_hz is required")
	}
	if *p.BreatheRateHz <= 0 {
		return errors.New("breathe_rate_hz must be > 0")
	}
	if p.FrequencyHz == nil {
		return errors.New("frequency_hz is required")
	}
	if *p.FrequencyHz <= 0 {
		return errors.New("frequency_hz must be > 0")
	}
	return nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	return SettingsPayload{
		ColorR:        int(cfg.LED.Color.R),
		ColorG:        int(cfg.LED.Color.G),
		ColorB:        int(cfg.LED.Color.B),
		Breathe:       cfg.LED.Breathe.Enable,
		BreatheRateHz: cfg.LED.Breathe.RateHz,
		FrequencyHz:   cfg.LED.FrequencyHz,
	}
}

func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validateSettingsPayloadIn(p); err != nil {
		return err
	}
	cfg.LED.Color.R = uint8(*p.ColorR)
	cfg.LED.Color.G = uint8(*p.ColorG)
	cfg.LED.Color.B = uint8(*p.ColorB)
	cfg.LED.Breathe.Enable = *p.Breathe
	cfg.LED.Breathe.RateHz = *p.BreatheRateHz
	cfg.LED.FrequencyHz = *p.FrequencyHz
	return nil
}

type SettingsStore struct {
	ConfigPath string
	// Apply, when set, is called after validation and before saving.
	// If Apply returns an error, the config is not saved.
	// Apply is expected to make the new config effective immediately.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) load() (config.Config, error) {
	return config.Load(s.ConfigPath)
}

func (s SettingsStore) save(cfg config.Config) error {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// Write atomically to avoid corrupting config on crash/power loss.
	// Use a temp file in the same directory so os.Rename is atomic.
	dir := filepath.Dir(s.ConfigPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.ConfigPath)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.ConfigPath)
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}

		switch r.Method {
		case http.MethodGet:
			cfg, err := s.load()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeSettings(w, configToSettingsPayload(cfg))

		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); !strings.HasPrefix(ct, "application/json") {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
			if err != nil {
				http.Error(w, "read failed", http.StatusBadRequest)
				return
			}
			in, err := decodeSettingsPayloadIn(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			cfg, err := s.load()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			if err := applySettingsPayload(&cfg, in); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if s.Apply != nil {
				if err := s.Apply(cfg); err != nil {
					http.Error(w, fmt.Sprintf("apply failed: %v", err), http.StatusBadRequest)
					return
				}
			}
			if err := s.save(cfg); err != nil {
				http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeSettings(w, configToSettingsPayload(cfg))

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func writeSettings(w http.ResponseWriter, p SettingsPayload) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
