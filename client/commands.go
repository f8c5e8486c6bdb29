package client

import (
	"context"
	"errors"
	"fmt"

	"travelvoice/capture"
	"travelvoice/conversation"
	"travelvoice/core"
	convevents "travelvoice/events/conversation"
	"travelvoice/settings"
)

// Settings returns the effective settings.
func (c *Client) Settings() settings.SpeechSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Messages returns the conversation log, greeting first.
func (c *Client) Messages() []conversation.Message {
	return c.log.Messages()
}

func (c *Client) Status() Status {
	s := c.Settings()
	c.mu.Lock()
	lastErr := c.lastError
	c.mu.Unlock()

	st := Status{
		Capture:     capture.Idle.String(),
		Processing:  c.pipeline.InFlight(),
		Speaking:    c.engine.Speaking(),
		ManualRetry: c.engine.ManualRetryPending(),
		Connected:   c.poller.Connected(),
		LastError:   lastErr,
		Settings:    s,
		Profile:     s.Profile(),
		Device:      c.config.Device,
		Messages:    c.log.Len(),
	}
	if ctrl := c.controllers[s.STTModel]; ctrl != nil {
		st.Capture = ctrl.State().String()
		st.Strategy = ctrl.Strategy()
	}
	return st
}

// StartRecording opens a capture session with the strategy of the current
// recognition model. It counts as a user gesture.
func (c *Client) StartRecording(ctx context.Context) error {
	c.engine.UserGesture(ctx)
	ctrl := c.activeController()
	if ctrl == nil {
		c.setError(core.ErrorKindMicrophone, ErrNoCapture)
		return ErrNoCapture
	}
	c.clearError()
	return ctrl.Start(ctx)
}

// StopRecording ends the session and sends whatever was captured.
func (c *Client) StopRecording(ctx context.Context) error {
	ctrl := c.activeController()
	if ctrl == nil {
		return ErrNoCapture
	}
	return ctrl.Stop(ctx)
}

// ToggleRecording starts a session when idle and stops it when recording.
func (c *Client) ToggleRecording(ctx context.Context) error {
	ctrl := c.activeController()
	if ctrl != nil && ctrl.State() == capture.Recording {
		return c.StopRecording(ctx)
	}
	return c.StartRecording(ctx)
}

// SendText sends a typed message and waits for the reply. It counts as a
// user gesture.
func (c *Client) SendText(ctx context.Context, text string) (conversation.Message, error) {
	c.engine.UserGesture(ctx)
	c.clearError()
	msg, err := c.pipeline.SendText(ctx, c.Settings().Language, text)
	if err != nil {
		c.sendFailed(err)
	}
	return msg, err
}

// SetLanguage switches the conversation language. The log restarts with the
// new greeting and playback stops.
func (c *Client) SetLanguage(ctx context.Context, lang settings.Language) (settings.SpeechSettings, error) {
	s := c.Settings()
	s.Language = lang
	return c.ApplySettings(ctx, s)
}

// SetTTSEnabled turns spoken replies on or off. Turning them off silences
// the current reply.
func (c *Client) SetTTSEnabled(ctx context.Context, enabled bool) (settings.SpeechSettings, error) {
	s := c.Settings()
	s.EnableTTS = enabled
	return c.ApplySettings(ctx, s)
}

// ApplyProfile switches to a predefined profile, keeping the language.
func (c *Client) ApplyProfile(ctx context.Context, name string) (settings.SpeechSettings, error) {
	s, err := c.Settings().WithProfile(name)
	if err != nil {
		return c.Settings(), err
	}
	return c.ApplySettings(ctx, s)
}

// ApplySettings validates s, applies the capability cascades and returns the
// effective settings. A recognition model switch aborts a running capture
// session; a language switch resets the conversation.
func (c *Client) ApplySettings(ctx context.Context, s settings.SpeechSettings) (settings.SpeechSettings, error) {
	if err := s.Validate(); err != nil {
		return c.Settings(), err
	}
	s = s.Apply(c.config.Capabilities)

	c.mu.Lock()
	old := c.settings
	c.settings = s
	c.mu.Unlock()

	if s.STTModel != old.STTModel {
		if ctrl := c.controllers[old.STTModel]; ctrl != nil && ctrl.State() == capture.Recording {
			if err := ctrl.Abort(ctx); err != nil && !errors.Is(err, capture.ErrClosed) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("failed to abort capture on model switch")
			}
		}
	}
	c.engine.Configure(s)
	if s.Language != old.Language {
		for _, ctrl := range c.controllers {
			ctrl.SetLanguage(s.Language.Locale())
		}
		c.resetConversation(ctx, s.Language)
	}

	c.logger.Info("settings applied", "language", string(s.Language), "stt", string(s.STTModel), "tts", string(s.TTSModel), "tts_enabled", s.EnableTTS, "emotions", s.EnableEmotions)
	c.publish(&convevents.SettingsChangedEvent{
		Language:       string(s.Language),
		STTModel:       string(s.STTModel),
		TTSModel:       string(s.TTSModel),
		EnableEmotions: s.EnableEmotions,
		EnableTTS:      s.EnableTTS,
		Profile:        s.Profile(),
	})
	return s, nil
}

// NewChat stops playback and capture and starts a fresh conversation.
func (c *Client) NewChat(ctx context.Context) error {
	c.engine.Cancel()
	if ctrl := c.activeController(); ctrl != nil && ctrl.State() == capture.Recording {
		if err := ctrl.Abort(ctx); err != nil && !errors.Is(err, capture.ErrClosed) {
			return fmt.Errorf("client: new chat: %w", err)
		}
	}
	c.clearError()
	c.resetConversation(ctx, c.Settings().Language)
	return nil
}

// UserGesture forwards a user interaction to the playback engine, which
// needs one to unlock audio on mobile platforms.
func (c *Client) UserGesture(ctx context.Context) {
	c.engine.UserGesture(ctx)
}

// RetryPlayback replays a reply whose playback was blocked. It reports
// whether there was one.
func (c *Client) RetryPlayback(ctx context.Context) bool {
	c.engine.UserGesture(ctx)
	return c.engine.Retry()
}

// StopPlayback silences the current reply.
func (c *Client) StopPlayback() {
	c.engine.Cancel()
}

// Busy reports whether a message is awaiting its reply.
func (c *Client) Busy() bool {
	return c.pipeline.InFlight()
}

func (c *Client) resetConversation(ctx context.Context, lang settings.Language) {
	greeting := c.log.Reset(ctx, lang)
	c.publish(&convevents.ConversationResetEvent{Language: string(lang), Greeting: greeting.Text})
}

func (c *Client) activeController() *capture.Controller {
	return c.controllers[c.Settings().STTModel]
}
