package playback

import (
	"strings"

	"travelvoice/settings"
)

// Voice is one voice offered by the local speech engine.
type Voice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default"`
}

// SelectVoice ranks the engine's voices for lang: a voice marked natural or
// online quality first, then a Google voice, then any voice of the language,
// then the engine default. ok is false when none of these exist and the
// engine should use its own default.
func SelectVoice(voices []Voice, lang settings.Language) (Voice, bool) {
	var langVoices []Voice
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Lang), string(lang)) {
			langVoices = append(langVoices, v)
		}
	}
	for _, v := range langVoices {
		if strings.Contains(v.Name, "Natural") || strings.Contains(v.Name, "Online") {
			return v, true
		}
	}
	for _, v := range langVoices {
		if strings.Contains(v.Name, "Google") {
			return v, true
		}
	}
	if len(langVoices) > 0 {
		return langVoices[0], true
	}
	for _, v := range voices {
		if v.Default {
			return v, true
		}
	}
	return Voice{}, false
}
