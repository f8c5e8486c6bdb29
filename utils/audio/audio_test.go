package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelvoice/core"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestEncodeWAV_ProducesReadableClip(t *testing.T) {
	pcm := pcmOf(0, 1200, -1200, 32767, -32768, 5)

	clip, err := EncodeWAV(pcm, 1, 16000)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(clip[:4]))
	assert.Equal(t, "WAVE", string(clip[8:12]))

	decoded, channels, rate, err := DecodeWAV(clip)
	require.NoError(t, err)
	assert.Equal(t, 1, channels)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, pcm, decoded)

	stripped, err := StripWAVHeaderIfPresent(clip)
	require.NoError(t, err)
	assert.Equal(t, pcm, stripped)
}

func TestEncodeWAV_RejectsInvalidPCM(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []byte
		channels int
	}{
		{name: "empty", pcm: nil, channels: 1},
		{name: "odd length", pcm: []byte{1, 2, 3}, channels: 1},
		{name: "channel mismatch", pcm: pcmOf(1, 2, 3), channels: 2},
		{name: "no channels", pcm: pcmOf(1), channels: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeWAV(tt.pcm, tt.channels, 16000)
			assert.Error(t, err)
		})
	}
}

func TestToPCM(t *testing.T) {
	ulaw, err := PCMBytesToULaw(pcmOf(0, 1000, -1000, 8000))
	require.NoError(t, err)

	out, err := ToPCM(core.AudioChunk{Data: &ulaw, Format: core.ULAW, SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	assert.Len(t, out, len(ulaw)*2)

	raw := pcmOf(7, 8)
	out, err = ToPCM(core.AudioChunk{Data: &raw, Format: core.PCM})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestStripWAVHeaderIfPresent_PassesThroughRawPCM(t *testing.T) {
	raw := pcmOf(1, 2, 3, 4, 5, 6, 7)
	out, err := StripWAVHeaderIfPresent(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestGetPCMDurationSeconds(t *testing.T) {
	d, err := GetPCMDurationSeconds(make([]byte, 32000), 1, 16000)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)
}
