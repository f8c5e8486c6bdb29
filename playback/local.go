package playback

import (
	"context"
	"sync"
	"time"

	"travelvoice/core"
	"travelvoice/settings"
)

// Utterance is a single call into the local speech engine.
type Utterance struct {
	Text   string
	Voice  Voice // zero value selects the engine default
	Lang   string
	Rate   float64 // 1.0 is normal speed
	Volume float64 // 0..1
}

// SpeechEngine is the platform speech synthesizer.
type SpeechEngine interface {
	Voices(ctx context.Context) ([]Voice, error)
	// Say blocks until the utterance has been spoken or ctx is cancelled.
	Say(ctx context.Context, u Utterance) error
}

// Resumer is implemented by engines that can silently stall mid-utterance
// and need a periodic nudge to continue.
type Resumer interface {
	Resume() error
}

// LocalConfig holds configuration for LocalSynthesizer.
type LocalConfig struct {
	// Mobile enables the unlock utterance and the periodic resume kick.
	Mobile bool `json:"mobile" yaml:"mobile"`
	// KickInterval is how often a stalled engine is resumed. Default: 10s.
	KickInterval core.Duration `json:"kick_interval" yaml:"kick_interval"`
	// PolishRate slows Polish speech slightly. Default: 0.95.
	PolishRate float64 `json:"polish_rate" yaml:"polish_rate"`
}

func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		KickInterval: core.Duration(10 * time.Second),
		PolishRate:   0.95,
	}
}

// LocalSynthesizer hands the whole reply to the platform engine in one call.
type LocalSynthesizer struct {
	engine SpeechEngine
	config LocalConfig
	logger *core.Logger

	mu     sync.Mutex
	voices []Voice
}

func NewLocalSynthesizer(engine SpeechEngine, config LocalConfig, logger *core.Logger) *LocalSynthesizer {
	def := DefaultLocalConfig()
	if config.KickInterval <= 0 {
		config.KickInterval = def.KickInterval
	}
	if config.PolishRate <= 0 {
		config.PolishRate = def.PolishRate
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &LocalSynthesizer{
		engine: engine,
		config: config,
		logger: logger.With(map[string]interface{}{"component": "local_tts"}),
	}
}

func (l *LocalSynthesizer) Name() string { return "local" }

func (l *LocalSynthesizer) Speak(ctx context.Context, req Request) error {
	u := Utterance{
		Text:   req.Text,
		Lang:   req.Language.Locale(),
		Rate:   1.0,
		Volume: 1.0,
	}
	if v, ok := SelectVoice(l.loadVoices(ctx), req.Language); ok {
		u.Voice = v
		l.logger.Debug("selected voice", "voice", v.Name, "lang", v.Lang)
	}
	if req.Language == settings.Polish {
		u.Rate = l.config.PolishRate
	}

	if l.config.Mobile {
		if r, ok := l.engine.(Resumer); ok {
			stop := l.kick(r)
			defer stop()
		}
	}
	return l.engine.Say(ctx, u)
}

// Unlock speaks a near-silent utterance. Mobile platforms only allow
// synthesis after one was started from a user gesture.
func (l *LocalSynthesizer) Unlock(ctx context.Context) error {
	if !l.config.Mobile {
		return nil
	}
	return l.engine.Say(ctx, Utterance{Text: " ", Rate: 1.0, Volume: 0.01})
}

// kick resumes the engine periodically until the returned func is called.
func (l *LocalSynthesizer) kick(r Resumer) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(l.config.KickInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := r.Resume(); err != nil {
					l.logger.With(map[string]interface{}{"error": err}).Debug("resume kick failed")
				}
			}
		}
	}()
	return func() { close(done) }
}

func (l *LocalSynthesizer) loadVoices(ctx context.Context) []Voice {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.voices != nil {
		return l.voices
	}
	voices, err := l.engine.Voices(ctx)
	if err != nil {
		l.logger.With(map[string]interface{}{"error": err}).Warn("failed to list voices, using engine default")
		return nil
	}
	l.voices = voices
	return voices
}
