package factories

import (
	"fmt"

	"travelvoice/capture"
	"travelvoice/core"
	deepgramstt "travelvoice/services/deepgram/stt"
	"travelvoice/settings"
)

// CaptureFactoryConfig configures the microphone and the capture strategies.
// The recorder always serves the whisper model; the browser model is served
// by a streaming recognizer only when one is configured.
type CaptureFactoryConfig struct {
	Source   capture.CommandConfig       `json:"source" yaml:"source"`
	Recorder capture.RecorderConfig      `json:"recorder" yaml:"recorder"`
	Deepgram *deepgramstt.DeepgramConfig `json:"deepgram,omitempty" yaml:"deepgram,omitempty"`
}

func DefaultCaptureFactoryConfig() CaptureFactoryConfig {
	return CaptureFactoryConfig{
		Source:   capture.DefaultCommandConfig(),
		Recorder: capture.DefaultRecorderConfig(),
	}
}

// BuildStrategies returns the capture strategy for each recognition model
// that can be served, and whether streaming recognition is available.
func BuildStrategies(config CaptureFactoryConfig, logger *core.Logger) (map[settings.STTModel]capture.Strategy, bool, error) {
	source, err := capture.NewCommandSource(config.Source)
	if err != nil {
		return nil, false, fmt.Errorf("capture source: %w", err)
	}

	strategies := map[settings.STTModel]capture.Strategy{
		settings.STTWhisper: capture.NewRecorder(source, config.Recorder, logger),
	}
	if config.Deepgram == nil || config.Deepgram.APIKey == "" {
		return strategies, false, nil
	}
	strategies[settings.STTBrowser] = deepgramstt.NewRecognizer(*config.Deepgram, source, logger)
	return strategies, true, nil
}
