package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/zaf/g711"

	"travelvoice/core"
)

// MimeTypeWAV is the content type of clips produced by EncodeWAV.
const MimeTypeWAV = "audio/wav"

// ULawBytesToPCM converts µ-law bytes to PCM bytes
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// ALawBytesToPCM converts A-law bytes to PCM bytes
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToULaw converts PCM bytes to µ-law
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ToPCM returns the chunk's samples as 16-bit little-endian PCM.
func ToPCM(chunk core.AudioChunk) ([]byte, error) {
	if chunk.Data == nil {
		return nil, nil
	}
	switch chunk.Format {
	case core.PCM:
		return *chunk.Data, nil
	case core.ULAW:
		return ULawBytesToPCM(*chunk.Data), nil
	case core.ALAW:
		return ALawBytesToPCM(*chunk.Data), nil
	default:
		return nil, fmt.Errorf("audio: unsupported format %s for PCM conversion", chunk.Format)
	}
}

func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm)%2 != 0 {
		return errors.New("PCM data must have even length (16-bit samples)")
	}
	if len(pcm) == 0 {
		return errors.New("PCM data is empty")
	}
	if numChannels <= 0 {
		return errors.New("invalid number of channels")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return errors.New("PCM data length doesn't match channel count")
	}
	return nil
}

// GetPCMDurationSeconds returns duration in seconds
func GetPCMDurationSeconds(pcm []byte, numChannels, sampleRate int) (float64, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return 0, err
	}
	if sampleRate <= 0 {
		return 0, errors.New("invalid sample rate")
	}
	frameCount := len(pcm) / 2 / numChannels
	return float64(frameCount) / float64(sampleRate), nil
}

// EncodeWAV wraps 16-bit PCM into a RIFF/WAVE container.
func EncodeWAV(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return nil, err
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, 16, numChannels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeWAV returns the PCM payload and format of a WAV clip.
func DecodeWAV(data []byte) (pcm []byte, numChannels, sampleRate int, err error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("audio: invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: decode wav: %w", err)
	}
	pcm = make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm, int(dec.NumChans), int(dec.SampleRate), nil
}

// StripWAVHeaderIfPresent returns raw PCM bytes if input starts with a RIFF/WAVE header.
// If the input is not a WAV file, it returns the input unchanged.
// Only extracts the "data" chunk and ignores other subchunks.
func StripWAVHeaderIfPresent(chunk []byte) ([]byte, error) {
	if len(chunk) < 12 {
		return chunk, nil
	}
	if !bytes.HasPrefix(chunk, []byte("RIFF")) || !bytes.Equal(chunk[8:12], []byte("WAVE")) {
		return chunk, nil
	}

	i := 12
	for i+8 <= len(chunk) {
		chunkID := string(chunk[i : i+4])
		chunkSize := binary.LittleEndian.Uint32(chunk[i+4 : i+8])
		next := i + 8 + int(chunkSize)

		if chunkID == "data" {
			if next > len(chunk) {
				// Streamed WAV headers often carry a placeholder size.
				return chunk[i+8:], nil
			}
			return chunk[i+8 : next], nil
		}

		// Account for padding to even boundary
		if chunkSize%2 != 0 {
			next++
		}
		if next > len(chunk) {
			break
		}
		i = next
	}

	return nil, errors.New("invalid WAV: data chunk not found")
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes once all samples are written.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, end*2)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, errors.New("audio: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("audio: negative position")
	}
	s.pos = int(next)
	return next, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
