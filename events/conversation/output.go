package conversation

import "time"

// MessageAppendedEvent mirrors every message appended to the conversation log.
type MessageAppendedEvent struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *MessageAppendedEvent) GetId() string {
	return "conversation.message_appended"
}

// ConversationResetEvent is emitted on new chat and on language change.
type ConversationResetEvent struct {
	Language string `json:"language"`
	Greeting string `json:"greeting"`
}

func (e *ConversationResetEvent) GetId() string {
	return "conversation.reset"
}

// SettingsChangedEvent carries the effective settings after cascades.
type SettingsChangedEvent struct {
	Language       string `json:"language"`
	STTModel       string `json:"stt_model"`
	TTSModel       string `json:"tts_model"`
	EnableEmotions bool   `json:"enable_emotions"`
	EnableTTS      bool   `json:"enable_tts"`
	Profile        string `json:"profile"`
}

func (e *SettingsChangedEvent) GetId() string {
	return "conversation.settings_changed"
}
