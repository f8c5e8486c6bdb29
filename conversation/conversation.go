// Package conversation keeps the ordered chat log shown to the user and the
// history projection sent to the backend.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelvoice/core"
	"travelvoice/settings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GreetingID marks the synthetic greeting; it never reaches the backend.
const GreetingID = "init"

// Message is immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry is the reduced form of a message sent as backend history.
type HistoryEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Greeting returns the opening assistant line for a language.
func Greeting(lang settings.Language) string {
	if lang == settings.Polish {
		return "Cześć! Gdzie chcesz się wybrać?"
	}
	return "Hi! Where do you want to go?"
}

// Log is the conversation of one client. The in-memory slice is
// authoritative; the store mirrors it and its failures are only logged.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	store    Store
	logger   *core.Logger
	now      func() time.Time
}

func NewLog(store Store, logger *core.Logger) *Log {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Log{
		store:  store,
		logger: logger.With(map[string]interface{}{"component": "conversation"}),
		now:    time.Now,
	}
}

// Restore loads a previously stored conversation. When none exists the log
// starts over with the greeting for lang.
func (l *Log) Restore(ctx context.Context, lang settings.Language) []Message {
	stored, err := l.store.Load(ctx)
	if err != nil {
		l.logger.With(map[string]interface{}{"error": err}).Warn("failed to load stored conversation, starting fresh")
	}
	if len(stored) == 0 || stored[0].ID != GreetingID {
		l.Reset(ctx, lang)
		return l.Messages()
	}
	l.mu.Lock()
	l.messages = stored
	l.mu.Unlock()
	l.logger.With(map[string]interface{}{"messages": len(stored)}).Info("restored conversation")
	return l.Messages()
}

// Reset replaces the whole log with the greeting for lang.
func (l *Log) Reset(ctx context.Context, lang settings.Language) Message {
	greeting := Message{
		ID:        GreetingID,
		Role:      RoleAssistant,
		Text:      Greeting(lang),
		Timestamp: l.now(),
	}
	l.mu.Lock()
	l.messages = []Message{greeting}
	l.mu.Unlock()

	if err := l.store.Reset(ctx, greeting); err != nil {
		l.logger.With(map[string]interface{}{"error": err}).Warn("failed to reset stored conversation")
	}
	return greeting
}

// Append adds a message and returns it.
func (l *Log) Append(ctx context.Context, role Role, text string) Message {
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Timestamp: l.now(),
	}
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()

	if err := l.store.Append(ctx, msg); err != nil {
		l.logger.With(map[string]interface{}{"error": err, "id": msg.ID}).Warn("failed to store message")
	}
	return msg
}

// Messages returns a copy of the log.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len is the number of messages including the greeting.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// History projects the log for the backend: greeting excluded, each entry
// reduced to role and text.
func (l *Log) History() []HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]HistoryEntry, 0, len(l.messages))
	for _, m := range l.messages {
		if m.ID == GreetingID {
			continue
		}
		out = append(out, HistoryEntry{Role: m.Role, Text: m.Text})
	}
	return out
}
