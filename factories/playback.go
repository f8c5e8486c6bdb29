package factories

import (
	"travelvoice/backend"
	"travelvoice/core"
	"travelvoice/metrics"
	"travelvoice/playback"
)

// PlaybackFactoryConfig configures the audio player used for server-side
// synthesis and the local speech engine.
type PlaybackFactoryConfig struct {
	Player       playback.PlayerConfig       `json:"player" yaml:"player"`
	SpeechEngine playback.SpeechEngineConfig `json:"speech_engine" yaml:"speech_engine"`
	Local        playback.LocalConfig        `json:"local" yaml:"local"`
}

func DefaultPlaybackFactoryConfig() PlaybackFactoryConfig {
	return PlaybackFactoryConfig{
		Player:       playback.DefaultPlayerConfig(),
		SpeechEngine: playback.DefaultSpeechEngineConfig(),
		Local:        playback.DefaultLocalConfig(),
	}
}

// Synthesizers holds the remote and local synthesizers. Local is nil when
// the speech engine is not installed.
type Synthesizers struct {
	Remote *playback.RemoteSynthesizer
	Local  *playback.LocalSynthesizer
}

// BuildSynthesizers probes the local engine and wires the remote synthesizer
// to fetch from b. sink receives per-segment failures.
func BuildSynthesizers(config PlaybackFactoryConfig, b backend.Backend, mobile bool, sink core.EventSink, m *metrics.Metrics, logger *core.Logger) Synthesizers {
	out := Synthesizers{
		Remote: playback.NewRemoteSynthesizer(b, playback.NewExecPlayer(config.Player, logger), sink, m, logger),
	}
	engine := playback.NewExecSpeechEngine(config.SpeechEngine)
	if engine.Available() {
		local := config.Local
		local.Mobile = mobile
		out.Local = playback.NewLocalSynthesizer(engine, local, logger)
	}
	return out
}
