// Package dispatch sends a finished user utterance to the backend and
// records the exchange in the conversation log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"travelvoice/backend"
	"travelvoice/conversation"
	"travelvoice/core"
	convevents "travelvoice/events/conversation"
	dispevents "travelvoice/events/dispatch"
	"travelvoice/metrics"
	"travelvoice/settings"
)

var (
	// ErrEmptyText is returned for text that is empty after trimming.
	ErrEmptyText = errors.New("dispatch: text is empty")
	// ErrInFlight is returned while another send is awaiting its reply.
	ErrInFlight = errors.New("dispatch: another message is in flight")
)

// Speaker renders assistant replies aloud.
type Speaker interface {
	Speak(text string)
	Cancel()
}

// Pipeline performs one send at a time; a second send while one is in
// flight is rejected with ErrInFlight and leaves the log untouched.
type Pipeline struct {
	backend backend.Backend
	log     *conversation.Log
	speaker Speaker
	sink    core.EventSink
	metrics *metrics.Metrics
	logger  *core.Logger

	inFlight atomic.Bool
}

// NewPipeline wires the pipeline. speaker, sink and m may be nil.
func NewPipeline(b backend.Backend, log *conversation.Log, speaker Speaker, sink core.EventSink, m *metrics.Metrics, logger *core.Logger) *Pipeline {
	if sink == nil {
		sink = core.FanOut(nil)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Pipeline{
		backend: b,
		log:     log,
		speaker: speaker,
		sink:    sink,
		metrics: m,
		logger:  logger.With(map[string]interface{}{"component": "dispatch"}),
	}
}

// InFlight reports whether a send is awaiting its reply.
func (p *Pipeline) InFlight() bool {
	return p.inFlight.Load()
}

// SendText appends the user message, asks the backend for a reply, appends
// it and hands it to the speaker. On backend failure the user message stays
// in the log and the error is returned.
func (p *Pipeline) SendText(ctx context.Context, lang settings.Language, text string) (conversation.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return conversation.Message{}, ErrEmptyText
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return conversation.Message{}, ErrInFlight
	}
	defer p.inFlight.Store(false)

	if p.speaker != nil {
		p.speaker.Cancel()
	}
	history := p.log.History()
	p.appendMessage(ctx, conversation.RoleUser, text)
	p.publish(&dispevents.DispatchStartedEvent{Kind: "text"})

	start := time.Now()
	resp, err := p.backend.Chat(ctx, backend.ChatRequest{Text: text, Language: lang, History: history})
	p.metrics.Dispatched("text", time.Since(start), err)
	if err != nil {
		return conversation.Message{}, p.failed("text", err)
	}
	return p.reply(ctx, text, resp.Response), nil
}

// SendAudio uploads a recorded clip. The server's transcription becomes the
// user message, appended just before the reply.
func (p *Pipeline) SendAudio(ctx context.Context, lang settings.Language, clip core.AudioClip) (conversation.Message, error) {
	if len(clip.Data) == 0 {
		return conversation.Message{}, ErrEmptyText
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return conversation.Message{}, ErrInFlight
	}
	defer p.inFlight.Store(false)

	if p.speaker != nil {
		p.speaker.Cancel()
	}
	history := p.log.History()
	p.publish(&dispevents.DispatchStartedEvent{Kind: "audio"})

	start := time.Now()
	resp, err := p.backend.ProcessAudio(ctx, backend.AudioRequest{
		Audio:    clip.Data,
		MimeType: clip.MimeType,
		Language: lang,
		History:  history,
	})
	p.metrics.Dispatched("audio", time.Since(start), err)
	if err != nil {
		return conversation.Message{}, p.failed("audio", err)
	}

	userText := strings.TrimSpace(resp.UserText)
	if userText != "" {
		p.appendMessage(ctx, conversation.RoleUser, userText)
	}
	return p.reply(ctx, userText, resp.Response), nil
}

func (p *Pipeline) reply(ctx context.Context, userText, reply string) conversation.Message {
	msg := p.appendMessage(ctx, conversation.RoleAssistant, reply)
	p.publish(&dispevents.ReplyEvent{UserText: userText, Reply: reply})
	if p.speaker != nil {
		p.speaker.Speak(reply)
	}
	return msg
}

func (p *Pipeline) failed(kind string, err error) error {
	p.logger.With(map[string]interface{}{"error": err, "kind": kind}).Error("backend request failed")
	p.publish(&dispevents.DispatchFailedEvent{Kind: kind, Error: err.Error()})
	p.publish(&core.ErrorEvent{Kind: core.ErrorKindBackend, Error: err.Error()})
	return fmt.Errorf("dispatch: %s: %w", kind, err)
}

func (p *Pipeline) appendMessage(ctx context.Context, role conversation.Role, text string) conversation.Message {
	msg := p.log.Append(ctx, role, text)
	p.publish(&convevents.MessageAppendedEvent{ID: msg.ID, Role: string(msg.Role), Text: msg.Text, Timestamp: msg.Timestamp})
	return msg
}

func (p *Pipeline) publish(event core.IEvent) {
	p.sink.Publish(core.NewEventPacket(event, "DispatchPipeline"))
}
