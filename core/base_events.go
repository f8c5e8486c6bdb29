package core

// ErrorKind classifies user-visible failures.
type ErrorKind string

const (
	ErrorKindMicrophone ErrorKind = "mic"
	ErrorKindRecognizer ErrorKind = "recognizer"
	ErrorKindBackend    ErrorKind = "backend"
	ErrorKindPlayback   ErrorKind = "playback"
	ErrorKindBusy       ErrorKind = "busy"
)

// ErrorEvent surfaces a recoverable failure to whoever renders the client.
type ErrorEvent struct {
	Kind  ErrorKind `json:"kind"`
	Error string    `json:"error"`
}

func (e *ErrorEvent) GetId() string {
	return "shared.error"
}

type WarningEvent struct {
	Error string `json:"error"`
}

func (e *WarningEvent) GetId() string {
	return "shared.warning"
}

// ShutdownEvent is fired when an external party asks the client to exit.
type ShutdownEvent struct {
	Reason string `json:"reason"`
}

func (e *ShutdownEvent) GetId() string {
	return "shared.shutdown"
}
