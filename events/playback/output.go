package playback

type SpeakingStartedEvent struct {
	Backend  string `json:"backend"`
	Segments int    `json:"segments"`
}

func (e *SpeakingStartedEvent) GetId() string {
	return "playback.speaking_started"
}

type SpeakingEndedEvent struct {
	Cancelled bool `json:"cancelled"`
}

func (e *SpeakingEndedEvent) GetId() string {
	return "playback.speaking_ended"
}

// SegmentFailedEvent reports a sentence whose audio could not be fetched or
// played; playback continues with the next sentence.
type SegmentFailedEvent struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func (e *SegmentFailedEvent) GetId() string {
	return "playback.segment_failed"
}

// ManualPlayRequiredEvent asks the user to tap to start blocked playback.
type ManualPlayRequiredEvent struct {
	Error string `json:"error"`
}

func (e *ManualPlayRequiredEvent) GetId() string {
	return "playback.manual_play_required"
}
