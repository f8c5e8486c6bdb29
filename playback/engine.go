// Package playback reads assistant replies aloud. At most one reply is
// audible at a time: every new reply, and every cancel, stops the previous
// one before anything else is played.
package playback

import (
	"context"
	"errors"
	"sync"

	"travelvoice/core"
	pbevents "travelvoice/events/playback"
	"travelvoice/metrics"
	"travelvoice/settings"
)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine selects a synthesizer per reply from the current settings.
// Event sinks are called from playback goroutines and must not call back
// into the engine synchronously.
type Engine struct {
	remote Synthesizer
	local  Synthesizer
	mobile bool
	sink   core.EventSink

	metrics *metrics.Metrics
	logger  *core.Logger

	mu       sync.Mutex
	settings settings.SpeechSettings
	current  *job
	pending  string // reply waiting for a manual retry

	unlocked  bool
	unlocking bool
}

// NewEngine creates an engine. Either synthesizer may be nil when the
// corresponding models are unavailable.
func NewEngine(remote, local Synthesizer, mobile bool, s settings.SpeechSettings, sink core.EventSink, m *metrics.Metrics, logger *core.Logger) *Engine {
	if sink == nil {
		sink = core.FanOut(nil)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Engine{
		remote:   remote,
		local:    local,
		mobile:   mobile,
		sink:     sink,
		metrics:  m,
		settings: s,
		logger:   logger.With(map[string]interface{}{"component": "playback"}),
	}
}

// Speaking reports whether a reply is being rendered.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// ManualRetryPending reports whether a blocked reply can be replayed.
func (e *Engine) ManualRetryPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != ""
}

// Configure applies new settings. Turning speech off, switching language or
// switching the voice model stops the current reply.
func (e *Engine) Configure(s settings.SpeechSettings) {
	e.mu.Lock()
	old := e.settings
	e.settings = s
	e.mu.Unlock()

	if !s.EnableTTS || s.Language != old.Language || s.TTSModel != old.TTSModel {
		e.Cancel()
	}
}

// Speak starts rendering text and returns immediately. It is a no-op while
// speech is disabled.
func (e *Engine) Speak(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.settings.EnableTTS {
		return
	}

	prev := e.current
	if prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{cancel: cancel, done: make(chan struct{})}
	e.current = j
	e.pending = ""
	go e.run(ctx, j, prev, text, e.settings)
}

// Cancel stops the current reply and waits until it is silent.
func (e *Engine) Cancel() {
	e.mu.Lock()
	j := e.current
	e.current = nil
	e.pending = ""
	e.mu.Unlock()

	if j != nil {
		j.cancel()
		<-j.done
	}
}

// UserGesture performs the one-time unlock on mobile platforms. Call it for
// every user-initiated interaction; a failed unlock is retried on the next.
func (e *Engine) UserGesture(ctx context.Context) {
	u, ok := e.local.(Unlocker)
	if !ok {
		return
	}
	e.mu.Lock()
	if !e.mobile || e.unlocked || e.unlocking {
		e.mu.Unlock()
		return
	}
	e.unlocking = true
	e.mu.Unlock()

	err := u.Unlock(ctx)

	e.mu.Lock()
	e.unlocking = false
	e.unlocked = err == nil
	e.mu.Unlock()
	if err != nil {
		e.logger.With(map[string]interface{}{"error": err}).Warn("speech unlock failed")
	}
}

// Retry replays the reply whose playback was blocked. It reports whether
// there was one.
func (e *Engine) Retry() bool {
	e.mu.Lock()
	text := e.pending
	e.pending = ""
	e.mu.Unlock()
	if text == "" {
		return false
	}
	e.Speak(text)
	return true
}

func (e *Engine) run(ctx context.Context, j, prev *job, text string, s settings.SpeechSettings) {
	defer close(j.done)
	defer j.cancel()

	if prev != nil {
		<-prev.done
	}
	if ctx.Err() != nil {
		return
	}

	synth, req := e.prepare(text, s)
	if synth == nil {
		e.logger.Warn("no synthesizer available for model", "model", s.TTSModel)
		e.finish(j)
		return
	}
	if req.Text == "" {
		e.finish(j)
		return
	}

	segments := 1
	if len(req.Segments) > 0 {
		segments = len(req.Segments)
	}
	e.publish(&pbevents.SpeakingStartedEvent{Backend: string(s.TTSModel), Segments: segments})
	err := synth.Speak(ctx, req)
	cancelled := ctx.Err() != nil
	e.finish(j)

	switch {
	case cancelled:
		e.metrics.ReplySpoken(string(s.TTSModel), "cancelled")
	case errors.Is(err, ErrAutoplayBlocked) && e.mobile:
		e.mu.Lock()
		e.pending = text
		e.mu.Unlock()
		e.metrics.ReplySpoken(string(s.TTSModel), "blocked")
		e.logger.With(map[string]interface{}{"error": err}).Warn("playback blocked, waiting for manual retry")
		e.publish(&pbevents.ManualPlayRequiredEvent{Error: err.Error()})
	case err != nil:
		e.metrics.ReplySpoken(string(s.TTSModel), "error")
		e.logger.With(map[string]interface{}{"error": err}).Warn("playback failed")
		e.publish(&core.WarningEvent{Error: err.Error()})
	default:
		e.metrics.ReplySpoken(string(s.TTSModel), "ok")
	}
	e.publish(&pbevents.SpeakingEndedEvent{Cancelled: cancelled})
}

func (e *Engine) prepare(text string, s settings.SpeechSettings) (Synthesizer, Request) {
	req := Request{
		Text:     Normalize(text),
		Language: s.Language,
		Model:    s.TTSModel,
	}
	if s.TTSModel.Remote() {
		req.Segments = SplitSentences(req.Text, s.Language)
		return e.remote, req
	}
	return e.local, req
}

func (e *Engine) finish(j *job) {
	e.mu.Lock()
	if e.current == j {
		e.current = nil
	}
	e.mu.Unlock()
}

func (e *Engine) publish(event core.IEvent) {
	e.sink.Publish(core.NewEventPacket(event, "PlaybackEngine"))
}
