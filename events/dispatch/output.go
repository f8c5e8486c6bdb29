package dispatch

// DispatchStartedEvent is emitted before the backend round trip begins.
type DispatchStartedEvent struct {
	Kind string `json:"kind"` // "text" or "audio"
}

func (e *DispatchStartedEvent) GetId() string {
	return "dispatch.started"
}

// ReplyEvent carries the assistant reply that was appended to the log.
type ReplyEvent struct {
	UserText string `json:"user_text"`
	Reply    string `json:"reply"`
}

func (e *ReplyEvent) GetId() string {
	return "dispatch.reply"
}

// DispatchFailedEvent reports a backend failure; the user message stays in the log.
type DispatchFailedEvent struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (e *DispatchFailedEvent) GetId() string {
	return "dispatch.failed"
}
