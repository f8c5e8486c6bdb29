package health

// ConnectivityChangedEvent is emitted when the backend health probe flips.
type ConnectivityChangedEvent struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func (e *ConnectivityChangedEvent) GetId() string {
	return "health.connectivity_changed"
}
