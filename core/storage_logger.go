package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// SessionMetadata is the first JSON line in each session log file.
type SessionMetadata struct {
	SessionID string `json:"session_id"`
	Language  string `json:"language,omitempty"`
	Device    string `json:"device,omitempty"`
	StartedAt string `json:"started_at"`
}

// LogEntry is a single JSON log line written after the metadata line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// LogWriter abstracts the destination for session log entries.
// Implementations include SessionLogWriter (file) and the control plane writer.
type LogWriter interface {
	Write(level, msg string, attrs map[string]interface{})
	Close()
}

// SessionLogWriter writes structured log lines to a per-session .jsonl file.
type SessionLogWriter struct {
	mu        sync.Mutex
	file      *os.File
	logDir    string
	sessionID string
}

// NewSessionLogWriter creates the log directory and session log file,
// writes the metadata first line, and creates an .active marker file.
func NewSessionLogWriter(logDir string, meta SessionMetadata) (*SessionLogWriter, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("storage logger: mkdir %q: %w", logDir, err)
	}

	filePath := filepath.Join(logDir, meta.SessionID+".jsonl")
	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("storage logger: create %q: %w", filePath, err)
	}

	if meta.StartedAt == "" {
		meta.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := sonic.Marshal(meta)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage logger: marshal metadata: %w", err)
	}
	f.Write(data)
	f.Write([]byte("\n"))

	// Create .active marker.
	activePath := filepath.Join(logDir, meta.SessionID+".active")
	if af, err := os.Create(activePath); err == nil {
		af.Close()
	}

	return &SessionLogWriter{
		file:      f,
		logDir:    logDir,
		sessionID: meta.SessionID,
	}, nil
}

// Write appends a structured log line to the session file.
func (w *SessionLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     stringifyErrors(attrs),
	}
	data, err := sonic.Marshal(entry)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Write(data)
		w.file.Write([]byte("\n"))
	}
}

// Close flushes and closes the log file, then removes the .active marker.
func (w *SessionLogWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	activePath := filepath.Join(w.logDir, w.sessionID+".active")
	os.Remove(activePath)
}

// NewSessionLogger creates a Logger that tees output to both the base logger
// (console) and the provided LogWriter. All child loggers created via With()
// inherit this behaviour automatically.
func NewSessionLogger(baseLogger *Logger, writer LogWriter) *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		if baseLogger.handlerFunc != nil {
			baseLogger.handlerFunc(level, msg, attrs)
		}
		writer.Write(level, msg, attrs)
	}

	attrs := make(map[string]interface{}, len(baseLogger.attrs))
	for k, v := range baseLogger.attrs {
		attrs[k] = v
	}
	return &Logger{
		handlerFunc: handler,
		attrs:       attrs,
		sync:        baseLogger.sync,
	}
}

// stringifyErrors replaces error values with their message; error types
// rarely marshal to anything useful.
func stringifyErrors(attrs map[string]interface{}) map[string]interface{} {
	if len(attrs) == 0 {
		return attrs
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}
