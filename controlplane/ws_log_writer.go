package controlplane

import (
	"time"

	"travelvoice/protocol"
)

// WSLogWriter implements core.LogWriter by sending log entries over the
// control plane WebSocket instead of writing to disk.
type WSLogWriter struct {
	client *Client
}

// NewWSLogWriter creates a LogWriter that routes the session's logs to the
// control plane.
func NewWSLogWriter(client *Client) *WSLogWriter {
	return &WSLogWriter{client: client}
}

// Write sends a log entry over the WebSocket.
func (w *WSLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	entry := protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     stringify(attrs),
	}
	w.client.SendLog(entry)
}

// Close signals the end of the session's log stream.
func (w *WSLogWriter) Close() {
	w.client.SendLogEnd()
}

func stringify(attrs map[string]interface{}) map[string]interface{} {
	if len(attrs) == 0 {
		return attrs
	}
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	return out
}
