package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelvoice/core"
	capevents "travelvoice/events/capture"
	"travelvoice/utils/audio"
)

var pcm16k = Format{Encoding: core.PCM, SampleRate: 16000, Channels: 1}

func TestRecorder_StopDeliversWAV(t *testing.T) {
	ctx := context.Background()
	pr, pw := io.Pipe()
	src := NewReaderSource(pcm16k, func(context.Context) (io.ReadCloser, error) { return pr, nil })
	rec := NewRecorder(src, DefaultRecorderConfig(), core.NewNopLogger())
	c, log := runController(t, rec, DefaultConfig(), nil)

	require.NoError(t, c.Start(ctx))
	samples := bytes.Repeat([]byte{0x10, 0x00}, 1600)
	_, err := pw.Write(samples)
	require.NoError(t, err)

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, Dispatching, c.State())

	ev, ok := log.find("capture.audio_utterance").(*capevents.AudioUtteranceEvent)
	require.True(t, ok)
	assert.Equal(t, audio.MimeTypeWAV, ev.MimeType)
	assert.InDelta(t, 0.1, ev.Seconds, 1e-6)

	pcm, channels, rate, err := audio.DecodeWAV(ev.Audio)
	require.NoError(t, err)
	assert.Equal(t, samples, pcm)
	assert.Equal(t, 1, channels)
	assert.Equal(t, 16000, rate)
}

func TestRecorder_SourceWritingWAVIsUnwrapped(t *testing.T) {
	ctx := context.Background()
	samples := bytes.Repeat([]byte{0x20, 0x01}, 800)
	container, err := audio.EncodeWAV(samples, 1, 16000)
	require.NoError(t, err)
	src := NewReaderSource(pcm16k, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(container)), nil
	})
	c, log := runController(t, NewRecorder(src, DefaultRecorderConfig(), core.NewNopLogger()), DefaultConfig(), nil)

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return log.find("capture.audio_utterance") != nil }, time.Second, 5*time.Millisecond)

	ev := log.find("capture.audio_utterance").(*capevents.AudioUtteranceEvent)
	pcm, _, _, err := audio.DecodeWAV(ev.Audio)
	require.NoError(t, err)
	assert.Equal(t, samples, pcm)
}

func TestRecorder_SourceEndHandsOverWithoutStop(t *testing.T) {
	ctx := context.Background()
	samples := bytes.Repeat([]byte{0x01, 0x02}, 800)
	src := NewReaderSource(pcm16k, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(samples)), nil
	})
	c, log := runController(t, NewRecorder(src, DefaultRecorderConfig(), core.NewNopLogger()), DefaultConfig(), nil)

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return log.find("capture.audio_utterance") != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Dispatching, c.State())
}

func TestRecorder_EmptyRecordingReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	pr, _ := io.Pipe()
	src := NewReaderSource(pcm16k, func(context.Context) (io.ReadCloser, error) { return pr, nil })
	c, log := runController(t, NewRecorder(src, DefaultRecorderConfig(), core.NewNopLogger()), DefaultConfig(), nil)

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, log.find("capture.audio_utterance"))
}

func TestRecorder_ConvertsULaw(t *testing.T) {
	ctx := context.Background()
	ulaw, err := audio.PCMBytesToULaw(bytes.Repeat([]byte{0x00, 0x10}, 400))
	require.NoError(t, err)
	src := NewReaderSource(Format{Encoding: core.ULAW, SampleRate: 8000, Channels: 1}, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(ulaw)), nil
	})
	c, log := runController(t, NewRecorder(src, DefaultRecorderConfig(), core.NewNopLogger()), DefaultConfig(), nil)

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool { return log.find("capture.audio_utterance") != nil }, time.Second, 5*time.Millisecond)
	ev := log.find("capture.audio_utterance").(*capevents.AudioUtteranceEvent)
	assert.InDelta(t, 0.05, ev.Seconds, 1e-6)
}

func TestRecorder_OpenFailureIsADeviceError(t *testing.T) {
	busy := errors.New("device busy")
	src := NewReaderSource(pcm16k, func(context.Context) (io.ReadCloser, error) { return nil, busy })
	c, _ := runController(t, NewRecorder(src, DefaultRecorderConfig(), core.NewNopLogger()), DefaultConfig(), nil)

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, Idle, c.State())
}

func TestRecorder_MaxDurationCapsRecording(t *testing.T) {
	ctx := context.Background()
	pr, pw := io.Pipe()
	src := NewReaderSource(pcm16k, func(context.Context) (io.ReadCloser, error) { return pr, nil })
	cfg := DefaultRecorderConfig()
	cfg.MaxDuration = core.Duration(50 * time.Millisecond)
	c, log := runController(t, NewRecorder(src, cfg, core.NewNopLogger()), DefaultConfig(), nil)

	require.NoError(t, c.Start(ctx))
	go pw.Write(make([]byte, 3200))

	require.Eventually(t, func() bool { return log.find("capture.audio_utterance") != nil }, time.Second, 5*time.Millisecond)
	pw.Close()
}

func TestNewCommandSource_DefaultsToArecord(t *testing.T) {
	src, err := NewCommandSource(CommandConfig{})
	require.NoError(t, err)
	assert.Equal(t, pcm16k, src.Format())
	assert.Equal(t, []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "16000", "-c", "1"}, src.config.Args)

	_, err = NewCommandSource(CommandConfig{Encoding: "flac"})
	assert.Error(t, err)
}

func TestCommandSource_MissingBinary(t *testing.T) {
	src, err := NewCommandSource(CommandConfig{Command: "definitely-not-a-recorder-binary"})
	require.NoError(t, err)
	_, err = src.Open(context.Background())
	assert.Error(t, err)
}
