package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// FallbackVoiceID is used when no voice is configured.
const FallbackVoiceID = "21m00Tcm4TlvDq8ikWAM"

// Model identifiers.
const (
	ModelTurboV2        = "eleven_turbo_v2"
	ModelTurboV25       = "eleven_turbo_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ModelForMode maps the mode setting to a model.
func ModelForMode(mode string) string {
	switch mode {
	case "englishfast", ModelTurboV2:
		return ModelTurboV2
	case "multilingual", ModelMultilingualV2:
		return ModelMultilingualV2
	default:
		return ModelTurboV25
	}
}

// ErrUnknownVoice is returned when a voice name matches no preset.
var ErrUnknownVoice = errors.New("unknown voice")

// Voice is a named preset.
type Voice struct {
	Name string
	ID   string
}

// Voices are the ElevenLabs premade voices.
var Voices = []Voice{
	{"Rachel", "21m00Tcm4TlvDq8ikWAM"},
	{"Domi", "AZnzlk1XvdvUeBnXmlld"},
	{"Sarah", "EXAVITQu4vr4xnSDxMaL"},
	{"Antoni", "ErXwobaYiN019PkySvjV"},
	{"Elli", "MF3mGyEYCl7XYWbV9V6O"},
	{"Josh", "TxGEqnHWrfWFTfGW9XjX"},
	{"Arnold", "VR6AewLTigWG4xSOukaG"},
	{"Adam", "pNInz6obpgDQGcFmaJgB"},
	{"Sam", "yoZ06aMxZJJ28mfd3POQ"},
	{"George", "JBFqnCBsd6RMkjVDRZzb"},
	{"Charlie", "IKne3meq5aSn9XLyUdCD"},
	{"Callum", "N2lVS1w4EtoT3dr4eOWO"},
	{"Liam", "TX3LPaxmHKxFdv7VOQHJ"},
	{"Charlotte", "XB0fDUnXU5powFXDhCwa"},
	{"Alice", "Xb7hH8MSUJpSbSDYk0k2"},
	{"Matilda", "XrExE9yKIg1WjnnlVkGX"},
	{"Chris", "iP95p4xoKVk53GoZ742B"},
	{"Brian", "nPczCjzI2devNBz1zQrb"},
	{"Daniel", "onwK4e9ZLuTAKqWW03F9"},
	{"Lily", "pFZP5JQG7iQjIQuC4Bku"},
	{"Bill", "pqHfZKP75CvOlQylNhV4"},
}

type voiceNames []Voice

func (v voiceNames) String(i int) string { return v[i].Name }
func (v voiceNames) Len() int            { return len(v) }

// ResolveVoice turns a voice name or id into a voice id. Exact ids and
// names win; otherwise the best fuzzy match on the preset names is used.
func ResolveVoice(nameOrID string) (string, error) {
	q := strings.TrimSpace(nameOrID)
	if q == "" {
		return FallbackVoiceID, nil
	}
	for _, v := range Voices {
		if v.ID == q || strings.EqualFold(v.Name, q) {
			return v.ID, nil
		}
	}
	// Anything that looks like an id is passed through untouched.
	if len(q) == 20 && !strings.ContainsAny(q, " \t") {
		return q, nil
	}
	matches := fuzzy.FindFrom(q, voiceNames(Voices))
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownVoice, q)
	}
	return Voices[matches[0].Index].ID, nil
}

// VoiceName returns the preset name of a voice id, or the id itself.
func VoiceName(id string) string {
	for _, v := range Voices {
		if v.ID == id {
			return v.Name
		}
	}
	return id
}
