package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"travelvoice/core"
	"travelvoice/utils/audio"
)

// RecorderConfig holds configuration for Recorder.
type RecorderConfig struct {
	// ChunkSize is the read size from the source in bytes.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
	// MaxDuration ends a recording that was never stopped. Default: 60s.
	MaxDuration core.Duration `json:"max_duration" yaml:"max_duration"`
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		ChunkSize:   3200,
		MaxDuration: core.Duration(60 * time.Second),
	}
}

// Recorder is the audio-capture strategy: it buffers the microphone in memory
// and, when stopped, delivers a single WAV clip for server-side transcription.
type Recorder struct {
	source AudioSource
	config RecorderConfig
	logger *core.Logger

	mu       sync.Mutex
	stream   io.ReadCloser
	sink     Sink
	pcm      bytes.Buffer
	stopping bool
	finished bool
	readDone chan struct{}
}

func NewRecorder(source AudioSource, config RecorderConfig, logger *core.Logger) *Recorder {
	def := DefaultRecorderConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = def.ChunkSize
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = def.MaxDuration
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Recorder{
		source: source,
		config: config,
		logger: logger.With(map[string]interface{}{"component": "recorder"}),
	}
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Start(ctx context.Context, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return ErrSessionActive
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		return err
	}
	r.stream = stream
	r.sink = sink
	r.pcm.Reset()
	r.stopping = false
	r.finished = false
	r.readDone = make(chan struct{})

	go r.readLoop(stream, r.readDone)
	return nil
}

func (r *Recorder) readLoop(stream io.Reader, done chan struct{}) {
	defer close(done)

	format := r.source.Format()
	limit := int(r.config.MaxDuration.Std().Seconds() * float64(format.BytesPerSecond()))
	buf := make([]byte, r.config.ChunkSize)
	read := 0
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			pcm, convErr := audio.ToPCM(core.AudioChunk{
				Data:       &data,
				Format:     format.Encoding,
				SampleRate: format.SampleRate,
				Channels:   format.Channels,
			})
			if convErr == nil {
				r.mu.Lock()
				r.pcm.Write(pcm)
				r.mu.Unlock()
			}
			read += n
		}
		if err != nil || (limit > 0 && read >= limit) {
			r.mu.Lock()
			stopping := r.stopping
			r.mu.Unlock()
			if stopping {
				return
			}
			if err != nil && !errors.Is(err, io.EOF) {
				r.sink.OnError(fmt.Errorf("recorder: read microphone: %w", err))
				return
			}
			// The source ended or the length cap was hit: hand over what we have.
			r.logger.Info("recording ended without stop", "bytes", read)
			r.finish()
			return
		}
	}
}

// Stop releases the microphone and delivers the recording to the sink.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	stream := r.stream
	done := r.readDone
	r.stopping = true
	r.mu.Unlock()
	if stream == nil {
		return nil
	}

	closeErr := stream.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("recorder: waiting for microphone: %w", ctx.Err())
	}
	r.finish()

	r.mu.Lock()
	r.stream = nil
	r.mu.Unlock()
	return closeErr
}

func (r *Recorder) finish() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	format := r.source.Format()
	pcm := r.pcm.Bytes()
	if format.Encoding == core.PCM {
		// Recorder commands such as parecord or sox may write a WAV container.
		if stripped, err := audio.StripWAVHeaderIfPresent(pcm); err == nil {
			pcm = stripped
		}
	}
	frame := 2 * format.Channels
	if frame <= 0 {
		frame = 2
	}
	pcm = append([]byte(nil), pcm[:len(pcm)-len(pcm)%frame]...)
	sink := r.sink
	r.mu.Unlock()

	if len(pcm) == 0 {
		sink.OnAudio(core.AudioClip{MimeType: audio.MimeTypeWAV})
		return
	}
	wav, err := audio.EncodeWAV(pcm, format.Channels, format.SampleRate)
	if err != nil {
		sink.OnError(fmt.Errorf("recorder: %w", err))
		return
	}
	sink.OnAudio(core.AudioClip{Data: wav, MimeType: audio.MimeTypeWAV})
}
