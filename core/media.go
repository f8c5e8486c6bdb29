package core

import "time"

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // Pulse-code modulation format, 16-bit little endian.
	ULAW                            // μ-law encoding format.
	ALAW                            // A-law encoding format.
)

func (f AudioEncodingFormat) String() string {
	switch f {
	case PCM:
		return "pcm"
	case ULAW:
		return "ulaw"
	case ALAW:
		return "alaw"
	default:
		return "unknown"
	}
}

// ParseAudioEncodingFormat accepts "pcm", "ulaw" and "alaw".
func ParseAudioEncodingFormat(s string) (AudioEncodingFormat, bool) {
	switch s {
	case "", "pcm", "s16le":
		return PCM, true
	case "ulaw", "mulaw":
		return ULAW, true
	case "alaw":
		return ALAW, true
	default:
		return PCM, false
	}
}

type AudioChunk struct {
	Data       *[]byte             // Raw audio data.
	SampleRate int                 // Sample rate of the audio data.
	Channels   int                 // Number of audio channels.
	Format     AudioEncodingFormat // Encoding format of the audio data.
	Timestamp  time.Time           // Timestamp of the audio chunk.
}

func (ac *AudioChunk) GetDurationInSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 || ac.Data == nil {
		return 0.0
	}
	bytesPerSample := 2
	if ac.Format != PCM {
		bytesPerSample = 1
	}
	totalSamples := len(*ac.Data) / (bytesPerSample * ac.Channels)
	return float64(totalSamples) / float64(ac.SampleRate)
}

// AudioClip is a complete encoded audio payload, e.g. a WAV recording or a
// synthesized sentence returned by a backend.
type AudioClip struct {
	Data     []byte
	MimeType string
}
