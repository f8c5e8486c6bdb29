// Package backend serves the chat, transcription and speech operations
// directly from the OpenAI API, for running the client without the travel
// server.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	api "travelvoice/backend"
	"travelvoice/conversation"
	"travelvoice/core"
	"travelvoice/settings"
)

const systemPrompt = `ROLE:
You are a Personal Travel Architect. Your job is not to sell anything but to build the ideal plan together with the user.

A good travel plan accounts for:
1. Pace (intense or relaxed).
2. Budget (student or luxury).
3. Interests (culture, nature, food).
4. Logistics (how to get around).

RULES:
- Do not produce a two-week plan at once. Plan in stages.
- Always ask for confirmation of a proposal before moving on.
- Be helpful and empathetic.
- Answer in %s.`

// Config holds the configuration for the OpenAI backend
type Config struct {
	APIKey             string  `json:"api_key" yaml:"api_key"`
	BaseURL            string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model              string  `json:"model" yaml:"model"`
	Temperature        float32 `json:"temperature" yaml:"temperature"`
	TranscriptionModel string  `json:"transcription_model" yaml:"transcription_model"`
	SpeechModel        string  `json:"speech_model" yaml:"speech_model"`
	Voice              string  `json:"voice" yaml:"voice"`
	// RequestTimeout bounds every chat, audio and synthesis operation.
	RequestTimeout core.Duration `json:"request_timeout" yaml:"request_timeout"`
	// HealthTimeout bounds the health probe.
	HealthTimeout core.Duration `json:"health_timeout" yaml:"health_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Model:              openai.GPT4oMini,
		Temperature:        0.7,
		TranscriptionModel: openai.Whisper1,
		SpeechModel:        string(openai.TTSModel1),
		Voice:              string(openai.VoiceNova),
		RequestTimeout:     core.Duration(30 * time.Second),
		HealthTimeout:      core.Duration(5 * time.Second),
	}
}

// Service implements api.Backend on top of go-openai.
type Service struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

func New(config Config, logger *core.Logger) (*Service, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai backend: API key is required")
	}
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.Temperature == 0 {
		config.Temperature = def.Temperature
	}
	if config.TranscriptionModel == "" {
		config.TranscriptionModel = def.TranscriptionModel
	}
	if config.SpeechModel == "" {
		config.SpeechModel = def.SpeechModel
	}
	if config.Voice == "" {
		config.Voice = def.Voice
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = def.HealthTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &Service{
		client: openai.NewClientWithConfig(cfg),
		config: config,
		logger: logger.With(map[string]interface{}{"component": "openai_backend", "model": config.Model}),
	}, nil
}

func (s *Service) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.HealthTimeout.Std())
	defer cancel()
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai backend: list models: %w: %w", api.ErrUnavailable, err)
	}
	return nil
}

func (s *Service) Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout.Std())
	defer cancel()
	reply, err := s.complete(ctx, req.Language, req.History, req.Text)
	if err != nil {
		return api.ChatResponse{}, err
	}
	return api.ChatResponse{Response: reply}, nil
}

// ProcessAudio transcribes with Whisper, then answers the transcript like
// Chat. Both calls share one RequestTimeout.
func (s *Service) ProcessAudio(ctx context.Context, req api.AudioRequest) (api.AudioResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout.Std())
	defer cancel()
	tr, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.TranscriptionModel,
		Reader:   bytes.NewReader(req.Audio),
		FilePath: fileNameFor(req.MimeType),
		Language: string(req.Language),
	})
	if err != nil {
		return api.AudioResponse{}, requestFailed("transcribe", err)
	}
	userText := strings.TrimSpace(tr.Text)
	if userText == "" {
		return api.AudioResponse{}, fmt.Errorf("openai backend: transcription is empty")
	}
	s.logger.Debug("transcribed audio", "chars", len(userText))

	reply, err := s.complete(ctx, req.Language, req.History, userText)
	if err != nil {
		return api.AudioResponse{}, err
	}
	return api.AudioResponse{UserText: userText, Response: reply}, nil
}

func (s *Service) Synthesize(ctx context.Context, req api.SpeechRequest) (core.AudioClip, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout.Std())
	defer cancel()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.SpeechModel),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(s.config.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return core.AudioClip{}, requestFailed("speech", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return core.AudioClip{}, requestFailed("read speech", err)
	}
	return core.AudioClip{Data: data, MimeType: "audio/mpeg"}, nil
}

func (s *Service) complete(ctx context.Context, lang settings.Language, history []conversation.HistoryEntry, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    buildMessages(lang, history, text),
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return "", requestFailed("chat completion", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", api.ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

// requestFailed wraps transport failures and timeouts in ErrUnavailable.
// Errors the API answered with are passed through.
func requestFailed(op string, err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
		return fmt.Errorf("openai backend: %s: %w", op, err)
	}
	return fmt.Errorf("openai backend: %s: %w: %w", op, api.ErrUnavailable, err)
}

func buildMessages(lang settings.Language, history []conversation.HistoryEntry, text string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(systemPrompt, languageName(lang)),
	})
	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: h.Text})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
}

func languageName(lang settings.Language) string {
	if lang == settings.Polish {
		return "Polish"
	}
	return "English"
}

func fileNameFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return "speech.webm"
	case strings.Contains(mimeType, "ogg"):
		return "speech.ogg"
	case strings.Contains(mimeType, "mpeg"):
		return "speech.mp3"
	default:
		return "speech.wav"
	}
}
