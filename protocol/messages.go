// Package protocol defines the messages exchanged with a remote control
// hub over WebSocket. Every message is an Envelope with a type and a JSON
// payload.
package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates all control-plane message types.
type MessageType string

const (
	// Client -> hub
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgLog       MessageType = "log"
	MsgStatus    MessageType = "status"
	MsgEvent     MessageType = "event"
	MsgLogEnd    MessageType = "log_end"
	MsgAck       MessageType = "ack"

	// Hub -> client
	MsgSettingsUpdate MessageType = "settings_update"
	MsgSendText       MessageType = "send_text"
	MsgNewChat        MessageType = "new_chat"
	MsgShutdown       MessageType = "shutdown"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client -> hub payloads ---

// RegisterPayload is sent once immediately after connecting.
type RegisterPayload struct {
	ClientID     string            `json:"client_id"`
	SessionID    string            `json:"session_id"`
	Version      string            `json:"version,omitempty"`
	Device       string            `json:"device,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// HeartbeatPayload is sent periodically and carries the client status.
type HeartbeatPayload struct {
	ClientID  string       `json:"client_id"`
	Timestamp time.Time    `json:"timestamp"`
	Status    ClientStatus `json:"status"`
}

// ClientStatus mirrors what the client would render.
type ClientStatus struct {
	Capture     string `json:"capture"`
	Processing  bool   `json:"processing"`
	Speaking    bool   `json:"speaking"`
	Connected   bool   `json:"connected"`
	LastError   string `json:"last_error,omitempty"`
	Language    string `json:"language"`
	STTModel    string `json:"stt_model"`
	TTSModel    string `json:"tts_model"`
	EnableTTS   bool   `json:"enable_tts"`
	Profile     string `json:"profile"`
	Messages    int    `json:"messages"`
	ManualRetry bool   `json:"manual_retry"`
}

// LogPayload carries a single log entry from a session.
type LogPayload struct {
	ClientID  string   `json:"client_id"`
	SessionID string   `json:"session_id"`
	Entry     LogEntry `json:"entry"`
}

// LogEntry is a structured log line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// StatusPayload is sent whenever the client status changes noticeably.
type StatusPayload struct {
	ClientID string       `json:"client_id"`
	Status   ClientStatus `json:"status"`
}

// EventPayload carries a client event for external consumers.
type EventPayload struct {
	ClientID  string          `json:"client_id"`
	SessionID string          `json:"session_id,omitempty"`
	EventID   string          `json:"event_id"`
	Data      json.RawMessage `json:"data"`
}

// LogEndPayload signals that a session's log stream has ended.
type LogEndPayload struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
}

// AckPayload acknowledges a command received from the hub.
type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}

// --- Hub -> client payloads ---

// SettingsUpdatePayload replaces the speech settings. Fields left out keep
// their current value; Profile, when set, is applied first.
type SettingsUpdatePayload struct {
	Profile        string  `json:"profile,omitempty"`
	Language       *string `json:"language,omitempty"`
	STTModel       *string `json:"stt_model,omitempty"`
	TTSModel       *string `json:"tts_model,omitempty"`
	EnableEmotions *bool   `json:"enable_emotions,omitempty"`
	EnableTTS      *bool   `json:"enable_tts,omitempty"`
}

// SendTextPayload sends a message as if the user had typed it.
type SendTextPayload struct {
	Text string `json:"text"`
}

// NewChatPayload starts a fresh conversation.
type NewChatPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ShutdownPayload requests the client to exit.
type ShutdownPayload struct {
	Reason       string `json:"reason,omitempty"`
	GraceSeconds int    `json:"grace_seconds,omitempty"`
}
