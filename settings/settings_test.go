package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCaps = Capabilities{RecognitionAvailable: true, SynthesisAvailable: true}

func TestDefault(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, English, s.Language)
	assert.Equal(t, STTBrowser, s.STTModel)
	assert.Equal(t, TTSBrowser, s.TTSModel)
	assert.False(t, s.EnableEmotions)
	assert.False(t, s.EnableTTS)
	assert.Equal(t, ProfileFast, s.Profile())
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		in      SpeechSettings
		caps    Capabilities
		wantSTT STTModel
		wantTTS TTSModel
	}{
		{
			name:    "unchanged with full capabilities",
			in:      Default(),
			caps:    allCaps,
			wantSTT: STTBrowser,
			wantTTS: TTSBrowser,
		},
		{
			name:    "no recognizer forces whisper",
			in:      Default(),
			caps:    Capabilities{SynthesisAvailable: true},
			wantSTT: STTWhisper,
			wantTTS: TTSBrowser,
		},
		{
			name:    "emotions force whisper",
			in:      SpeechSettings{Language: Polish, STTModel: STTBrowser, TTSModel: TTSEdge, EnableEmotions: true},
			caps:    allCaps,
			wantSTT: STTWhisper,
			wantTTS: TTSEdge,
		},
		{
			name:    "no synthesizer moves browser voice to piper",
			in:      Default(),
			caps:    Capabilities{RecognitionAvailable: true},
			wantSTT: STTBrowser,
			wantTTS: TTSPiper,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.in.Apply(tt.caps)
			assert.Equal(t, tt.wantSTT, out.STTModel)
			assert.Equal(t, tt.wantTTS, out.TTSModel)
			assert.Equal(t, tt.in.Language, out.Language)
		})
	}
}

func TestProfiles(t *testing.T) {
	s, err := Default().WithProfile(ProfileEmpathetic)
	require.NoError(t, err)
	assert.Equal(t, ProfileEmpathetic, s.Profile())
	assert.True(t, s.EnableTTS)

	s, err = s.WithProfile(ProfileFast)
	require.NoError(t, err)
	assert.Equal(t, ProfileFast, s.Profile())

	s.TTSModel = TTSPiper
	assert.Equal(t, ProfileCustom, s.Profile())

	_, err = s.WithProfile("turbo")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Language = "de"
	assert.Error(t, s.Validate())

	s = Default()
	s.TTSModel = "festival"
	assert.Error(t, s.Validate())
}

func TestLocale(t *testing.T) {
	assert.Equal(t, "pl-PL", Polish.Locale())
	assert.Equal(t, "en-US", English.Locale())
}

func TestDetectDevice(t *testing.T) {
	assert.Equal(t, DeviceMobile, DetectDevice("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", 0))
	assert.Equal(t, DeviceMobile, DetectDevice("Mozilla/5.0 (Linux; Android 14)", 0))
	assert.Equal(t, DeviceMobile, DetectDevice("Mozilla/5.0 (X11; Linux x86_64)", 5))
	assert.Equal(t, DeviceDesktop, DetectDevice("Mozilla/5.0 (X11; Linux x86_64)", 0))
}
