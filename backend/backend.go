// Package backend talks to the conversational server: health probe, text
// chat, audio chat with server-side transcription, and speech synthesis.
package backend

import (
	"context"
	"errors"
	"fmt"

	"travelvoice/conversation"
	"travelvoice/core"
	"travelvoice/settings"
)

var (
	// ErrUnavailable wraps transport failures and timeouts.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrEmptyReply is returned when the server answers without a reply text.
	ErrEmptyReply = errors.New("backend returned an empty reply")
)

// Backend is the opaque collaborator behind the client.
type Backend interface {
	Health(ctx context.Context) error
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ProcessAudio(ctx context.Context, req AudioRequest) (AudioResponse, error)
	Synthesize(ctx context.Context, req SpeechRequest) (core.AudioClip, error)
}

type ChatRequest struct {
	Text     string                      `json:"text"`
	Language settings.Language           `json:"language"`
	History  []conversation.HistoryEntry `json:"history"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

// AudioRequest is sent as multipart form data.
type AudioRequest struct {
	Audio    []byte
	MimeType string
	Language settings.Language
	History  []conversation.HistoryEntry
}

type AudioResponse struct {
	UserText string `json:"user_text"`
	Response string `json:"response"`
}

type SpeechRequest struct {
	Text     string            `json:"text"`
	Language settings.Language `json:"language"`
	Model    settings.TTSModel `json:"model"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s: unexpected status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("backend: %s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}
