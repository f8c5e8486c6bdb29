package capture

// CaptureStartedEvent is emitted once the capture device or recognizer is live.
type CaptureStartedEvent struct {
	SessionID string `json:"session_id"`
	Strategy  string `json:"strategy"`
}

func (e *CaptureStartedEvent) GetId() string {
	return "capture.started"
}

// InterimTranscriptEvent carries the live, provisional transcript for display.
type InterimTranscriptEvent struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Pending   string `json:"pending"` // accumulated final text not yet sent
}

func (e *InterimTranscriptEvent) GetId() string {
	return "capture.interim"
}

// UtteranceEvent is emitted exactly once per capture session when a spoken
// turn is complete and should be dispatched as text.
type UtteranceEvent struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (e *UtteranceEvent) GetId() string {
	return "capture.utterance"
}

// AudioUtteranceEvent is the audio-capture counterpart of UtteranceEvent.
type AudioUtteranceEvent struct {
	SessionID string  `json:"session_id"`
	Audio     []byte  `json:"-"`
	MimeType  string  `json:"mime_type"`
	Seconds   float64 `json:"seconds"`
}

func (e *AudioUtteranceEvent) GetId() string {
	return "capture.audio_utterance"
}

// CaptureStoppedEvent is emitted when the session releases its device.
type CaptureStoppedEvent struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (e *CaptureStoppedEvent) GetId() string {
	return "capture.stopped"
}

// CaptureFailedEvent reports a device acquisition failure or a fatal recognizer error.
type CaptureFailedEvent struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
	Device    bool   `json:"device"` // true when the device could not be acquired
}

func (e *CaptureFailedEvent) GetId() string {
	return "capture.failed"
}
