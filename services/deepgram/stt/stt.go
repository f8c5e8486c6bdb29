// Package stt is the streaming recognizer capture strategy: microphone audio
// is streamed to Deepgram over a WebSocket and interim and final transcripts
// come back as recognizer results.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"travelvoice/assembler"
	"travelvoice/capture"
	"travelvoice/core"
	"travelvoice/utils/audio"
)

// DeepgramConfig holds configuration options for Deepgram STT
type DeepgramConfig struct {
	APIKey         string   `json:"api_key" yaml:"api_key"`
	BaseURL        string   `json:"base_url" yaml:"base_url"`
	Model          string   `json:"model" yaml:"model"`
	Language       string   `json:"language" yaml:"language"`
	Punctuate      bool     `json:"punctuate" yaml:"punctuate"`
	SmartFormat    bool     `json:"smart_format" yaml:"smart_format"`
	Endpointing    int      `json:"endpointing" yaml:"endpointing"` // ms of silence, 0 = server default
	UtteranceEndMs int      `json:"utterance_end_ms" yaml:"utterance_end_ms"`
	Keywords       []string `json:"keywords" yaml:"keywords"`

	KeepAliveInterval core.Duration `json:"keep_alive_interval" yaml:"keep_alive_interval"`
	FinalizeTimeout   core.Duration `json:"finalize_timeout" yaml:"finalize_timeout"`
}

// DefaultConfig returns a default configuration for Deepgram STT
func DefaultConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL:           "wss://api.deepgram.com",
		Model:             "nova-2",
		Language:          "en-US",
		Punctuate:         true,
		SmartFormat:       true,
		KeepAliveInterval: core.Duration(8 * time.Second),
		FinalizeTimeout:   core.Duration(1500 * time.Millisecond),
	}
}

// Recognizer implements capture.Strategy for Deepgram's streaming API.
type Recognizer struct {
	config DeepgramConfig
	source capture.AudioSource
	dialer *websocket.Dialer
	logger *core.Logger

	mu        sync.Mutex
	language  string
	conn      *websocket.Conn
	writeMu   sync.Mutex
	stream    io.ReadCloser
	sink      capture.Sink
	stopping  bool
	heard     bool // a transcript arrived since the last utterance end
	finalized chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewRecognizer creates a recognizer that streams from source.
func NewRecognizer(config DeepgramConfig, source capture.AudioSource, logger *core.Logger) *Recognizer {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = def.KeepAliveInterval
	}
	if config.FinalizeTimeout <= 0 {
		config.FinalizeTimeout = def.FinalizeTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Recognizer{
		config:   config,
		source:   source,
		dialer:   websocket.DefaultDialer,
		language: config.Language,
		logger:   logger.With(map[string]interface{}{"component": "deepgram_stt"}),
	}
}

func (d *Recognizer) Name() string { return "deepgram" }

// SetLanguage changes the recognition locale for the next session.
func (d *Recognizer) SetLanguage(locale string) {
	d.mu.Lock()
	d.language = locale
	d.mu.Unlock()
}

// Start connects to Deepgram, opens the microphone and starts streaming.
func (d *Recognizer) Start(ctx context.Context, sink capture.Sink) error {
	if d.config.APIKey == "" {
		return errors.New("deepgram: API key is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return capture.ErrSessionActive
	}

	wsURL, err := d.buildWebSocketURL(d.language)
	if err != nil {
		return fmt.Errorf("deepgram: build url: %w", err)
	}
	headers := http.Header{"Authorization": {"Token " + d.config.APIKey}}
	conn, _, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("deepgram: connect: %w", err)
	}

	stream, err := d.source.Open(ctx)
	if err != nil {
		conn.Close()
		return err
	}

	d.conn = conn
	d.stream = stream
	d.sink = sink
	d.stopping = false
	d.heard = false
	d.finalized = make(chan struct{}, 1)
	d.stop = make(chan struct{})

	d.wg.Add(3)
	go d.pumpAudio(stream)
	go d.readLoop(conn)
	go d.keepAlive(d.stop)

	d.logger.Info("deepgram session started", "language", d.language, "model", d.config.Model)
	return nil
}

// Stop ends the audio stream, asks Deepgram to finalize what it has heard and
// waits briefly for that last result before closing the connection.
func (d *Recognizer) Stop(ctx context.Context) error {
	d.mu.Lock()
	conn := d.conn
	stream := d.stream
	finalized := d.finalized
	if conn == nil {
		d.mu.Unlock()
		return nil
	}
	d.stopping = true
	close(d.stop)
	d.mu.Unlock()

	stream.Close()
	if err := d.sendControl("Finalize"); err == nil {
		timer := time.NewTimer(d.config.FinalizeTimeout.Std())
		select {
		case <-finalized:
		case <-timer.C:
			d.logger.Debug("deepgram finalize timed out")
		case <-ctx.Done():
		}
		timer.Stop()
	}
	_ = d.sendControl("CloseStream")
	err := conn.Close()
	d.wg.Wait()

	d.mu.Lock()
	d.conn = nil
	d.stream = nil
	d.mu.Unlock()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("deepgram: close: %w", err)
	}
	return nil
}

func (d *Recognizer) pumpAudio(stream io.Reader) {
	defer d.wg.Done()
	format := d.source.Format()
	buf := make([]byte, format.BytesPerSecond()/10)
	if len(buf) == 0 {
		buf = make([]byte, 3200)
	}
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			pcm, convErr := audio.ToPCM(core.AudioChunk{Data: &data, Format: format.Encoding, SampleRate: format.SampleRate, Channels: format.Channels})
			if convErr != nil {
				d.fail(fmt.Errorf("deepgram: convert audio: %w", convErr))
				return
			}
			if werr := d.write(websocket.BinaryMessage, pcm); werr != nil {
				d.fail(fmt.Errorf("deepgram: send audio: %w", werr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.fail(fmt.Errorf("deepgram: read microphone: %w", err))
			}
			return
		}
	}
}

func (d *Recognizer) readLoop(conn *websocket.Conn) {
	defer d.wg.Done()
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			d.fail(fmt.Errorf("deepgram: read: %w", err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := d.handleMessage(message); err != nil {
			d.logger.With(map[string]interface{}{"error": err}).Debug("ignoring deepgram message")
		}
	}
}

func (d *Recognizer) keepAlive(stop <-chan struct{}) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.config.KeepAliveInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = d.sendControl("KeepAlive")
		}
	}
}

// fail reports an error unless the session is being stopped on purpose.
func (d *Recognizer) fail(err error) {
	d.mu.Lock()
	stopping := d.stopping
	sink := d.sink
	d.mu.Unlock()
	if stopping || sink == nil {
		return
	}
	sink.OnError(err)
}

func (d *Recognizer) write(messageType int, data []byte) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

func (d *Recognizer) sendControl(kind string) error {
	msg, err := sonic.Marshal(controlMessage{Type: kind})
	if err != nil {
		return err
	}
	return d.write(websocket.TextMessage, msg)
}

// buildWebSocketURL constructs the WebSocket URL with query parameters
func (d *Recognizer) buildWebSocketURL(language string) (string, error) {
	base, err := url.Parse(d.config.BaseURL + "/v1/listen")
	if err != nil {
		return "", err
	}
	format := d.source.Format()

	q := base.Query()
	q.Set("model", d.config.Model)
	if language != "" {
		q.Set("language", language)
	}
	q.Set("interim_results", "true")
	q.Set("punctuate", strconv.FormatBool(d.config.Punctuate))
	q.Set("smart_format", strconv.FormatBool(d.config.SmartFormat))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	q.Set("channels", strconv.Itoa(format.Channels))
	if d.config.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(d.config.Endpointing))
	}
	if d.config.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(d.config.UtteranceEndMs))
	}
	for _, keyword := range d.config.Keywords {
		q.Add("keywords", keyword)
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}

// handleMessage processes incoming WebSocket messages
func (d *Recognizer) handleMessage(message []byte) error {
	var base struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(message, &base); err != nil {
		return fmt.Errorf("failed to parse message type: %w", err)
	}

	switch base.Type {
	case "Results":
		var result ListenV1Results
		if err := sonic.Unmarshal(message, &result); err != nil {
			return fmt.Errorf("failed to parse results: %w", err)
		}
		d.processResults(result)
	case "UtteranceEnd":
		d.utteranceEnd()
	case "Metadata", "SpeechStarted":
	default:
		return fmt.Errorf("unknown message type: %s", base.Type)
	}
	return nil
}

func (d *Recognizer) processResults(result ListenV1Results) {
	d.mu.Lock()
	sink := d.sink
	finalized := d.finalized
	d.mu.Unlock()

	if result.FromFinalize && finalized != nil {
		defer func() {
			select {
			case finalized <- struct{}{}:
			default:
			}
		}()
	}
	if len(result.Channel.Alternatives) == 0 || sink == nil {
		return
	}
	transcript := result.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return
	}

	d.mu.Lock()
	d.heard = true
	d.mu.Unlock()

	final := result.IsFinal || result.SpeechFinal || result.FromFinalize
	d.logger.Debug("deepgram result", "final", final, "transcript", transcript)
	sink.OnResult(assembler.Result{Segments: []assembler.Segment{{Text: transcript, Final: final}}})
}

// utteranceEnd reports capture.ErrNoSpeech when Deepgram detected the end of
// an utterance without transcribing any words.
func (d *Recognizer) utteranceEnd() {
	d.mu.Lock()
	heard := d.heard
	d.heard = false
	d.mu.Unlock()
	if !heard {
		d.fail(capture.ErrNoSpeech)
	}
}

type controlMessage struct {
	Type string `json:"type"`
}

// ListenV1Results is the transcript message of the streaming API.
type ListenV1Results struct {
	Type         string  `json:"type"`
	Duration     float64 `json:"duration"`
	Start        float64 `json:"start"`
	IsFinal      bool    `json:"is_final"`
	SpeechFinal  bool    `json:"speech_final"`
	FromFinalize bool    `json:"from_finalize,omitempty"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}
