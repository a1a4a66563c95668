// Package settings persists the reader's user settings: the API credential,
// the voice, the model mode and the playback speed.
package settings

import (
	"strconv"
	"strings"

	"github.com/dgnsrekt/readaloud/internal/synth"
)

// Setting keys.
const (
	KeyAPIKey = "apiKey"
	KeyVoice  = "selectedVoiceId"
	KeyMode   = "mode"
	KeySpeed  = "speed"
)

// Store is a string key/value settings store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// Settings are the values a reading session needs.
type Settings struct {
	APIKey  string
	VoiceID string
	Mode    string
	Speed   float64
}

// HasAPIKey reports whether a credential is configured.
func (s Settings) HasAPIKey() bool {
	return s.APIKey != ""
}

// Model returns the model for the configured mode.
func (s Settings) Model() string {
	return synth.ModelForMode(s.Mode)
}

// Load reads settings from s, filling in defaults.
func Load(s Store) Settings {
	out := Settings{VoiceID: synth.FallbackVoiceID, Speed: 1}
	if v, ok := s.Get(KeyAPIKey); ok {
		out.APIKey = strings.TrimSpace(v)
	}
	if v, ok := s.Get(KeyVoice); ok && strings.TrimSpace(v) != "" {
		out.VoiceID = strings.TrimSpace(v)
	}
	if v, ok := s.Get(KeyMode); ok {
		out.Mode = strings.TrimSpace(v)
	}
	if v, ok := s.Get(KeySpeed); ok {
		out.Speed = ParseSpeed(v)
	}
	return out
}

// ParseSpeed parses a playback rate. Anything unusable means normal speed.
func ParseSpeed(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 || f > 16 {
		return 1
	}
	return f
}
