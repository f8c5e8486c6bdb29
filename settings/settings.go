// Package settings holds the speech configuration of a client and the
// cascading rules between its fields.
package settings

import (
	"fmt"
	"regexp"
)

type Language string

const (
	Polish  Language = "pl"
	English Language = "en"
)

// Valid reports whether the language is supported.
func (l Language) Valid() bool {
	return l == Polish || l == English
}

// Locale is the recognizer/synthesizer locale tag for the language.
func (l Language) Locale() string {
	if l == Polish {
		return "pl-PL"
	}
	return "en-US"
}

// STTModel selects the capture strategy.
type STTModel string

const (
	// STTBrowser is streaming recognition with interim results on the client side.
	STTBrowser STTModel = "browser"
	// STTWhisper records audio and lets the backend transcribe it.
	STTWhisper STTModel = "whisper"
)

// TTSModel selects the synthesis backend.
type TTSModel string

const (
	// TTSBrowser is the local platform synthesizer.
	TTSBrowser TTSModel = "browser"
	TTSPiper   TTSModel = "piper"
	TTSEdge    TTSModel = "edge"
)

// Remote reports whether audio for the model is fetched from the backend.
func (m TTSModel) Remote() bool {
	return m == TTSPiper || m == TTSEdge
}

type SpeechSettings struct {
	Language       Language `json:"language" yaml:"language"`
	STTModel       STTModel `json:"stt_model" yaml:"stt_model"`
	TTSModel       TTSModel `json:"tts_model" yaml:"tts_model"`
	EnableEmotions bool     `json:"enable_emotions" yaml:"enable_emotions"`
	EnableTTS      bool     `json:"enable_tts" yaml:"enable_tts"`
}

// Default returns the settings a fresh client starts with.
func Default() SpeechSettings {
	return SpeechSettings{
		Language: English,
		STTModel: STTBrowser,
		TTSModel: TTSBrowser,
	}
}

// Validate checks enum fields.
func (s SpeechSettings) Validate() error {
	if !s.Language.Valid() {
		return fmt.Errorf("settings: unsupported language %q", s.Language)
	}
	switch s.STTModel {
	case STTBrowser, STTWhisper:
	default:
		return fmt.Errorf("settings: unsupported stt model %q", s.STTModel)
	}
	switch s.TTSModel {
	case TTSBrowser, TTSPiper, TTSEdge:
	default:
		return fmt.Errorf("settings: unsupported tts model %q", s.TTSModel)
	}
	return nil
}

// Capabilities records what the platform can really do, as found by probing
// at startup rather than by feature presence.
type Capabilities struct {
	RecognitionAvailable bool `json:"recognition_available"`
	SynthesisAvailable   bool `json:"synthesis_available"`
}

// Apply returns s with the cascading rules applied:
//   - without a working recognizer the capture model is forced to whisper
//   - emotion detection needs server-side audio, so it also forces whisper
//   - without a local synthesizer the browser voice falls back to piper
func (s SpeechSettings) Apply(caps Capabilities) SpeechSettings {
	if !caps.RecognitionAvailable || s.EnableEmotions {
		s.STTModel = STTWhisper
	}
	if !caps.SynthesisAvailable && s.TTSModel == TTSBrowser {
		s.TTSModel = TTSPiper
	}
	return s
}

// Profile names.
const (
	ProfileFast       = "fast"
	ProfileEmpathetic = "empathetic"
	ProfileCustom     = "custom"
)

// Profile classifies s as one of the predefined profiles.
func (s SpeechSettings) Profile() string {
	switch {
	case s.STTModel == STTBrowser && s.TTSModel == TTSBrowser && !s.EnableEmotions && !s.EnableTTS:
		return ProfileFast
	case s.STTModel == STTWhisper && s.TTSModel == TTSBrowser && s.EnableEmotions:
		return ProfileEmpathetic
	default:
		return ProfileCustom
	}
}

// WithProfile overwrites the model fields with a predefined profile. The
// language is kept.
func (s SpeechSettings) WithProfile(name string) (SpeechSettings, error) {
	switch name {
	case ProfileFast:
		s.STTModel = STTBrowser
		s.TTSModel = TTSBrowser
		s.EnableEmotions = false
		s.EnableTTS = false
	case ProfileEmpathetic:
		s.STTModel = STTWhisper
		s.TTSModel = TTSBrowser
		s.EnableEmotions = true
		s.EnableTTS = true
	default:
		return s, fmt.Errorf("settings: unknown profile %q", name)
	}
	return s, nil
}

// Device is the class of hardware the client runs on. It picks the
// transcript completion policy and the playback resilience behaviour.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

var mobileUserAgent = regexp.MustCompile(`(?i)iPhone|iPad|iPod|Android`)

// DetectDevice classifies a client from its user agent and touch support.
func DetectDevice(userAgent string, maxTouchPoints int) Device {
	if mobileUserAgent.MatchString(userAgent) || maxTouchPoints > 0 {
		return DeviceMobile
	}
	return DeviceDesktop
}
