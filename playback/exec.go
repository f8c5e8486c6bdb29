package playback

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"travelvoice/core"
)

var defaultBlockedPatterns = []string{
	"Device or resource busy",
	"Permission denied",
	"Connection refused",
	"Host is down",
}

// PlayerConfig runs an external program that plays an audio file.
type PlayerConfig struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	// BlockedPatterns in the player's stderr mean the output device could
	// not be opened.
	BlockedPatterns []string `json:"blocked_patterns" yaml:"blocked_patterns"`
	TempDir         string   `json:"temp_dir" yaml:"temp_dir"`
}

// DefaultPlayerConfig plays through ffplay without a window.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Command:         "ffplay",
		Args:            []string{"-nodisp", "-autoexit", "-loglevel", "error"},
		BlockedPatterns: defaultBlockedPatterns,
	}
}

// ExecPlayer writes each clip to a temporary file and plays it with an
// external command. The file is removed once the clip has finished or was
// cancelled.
type ExecPlayer struct {
	config PlayerConfig
	logger *core.Logger
}

func NewExecPlayer(config PlayerConfig, logger *core.Logger) *ExecPlayer {
	def := DefaultPlayerConfig()
	if config.Command == "" {
		config.Command = def.Command
		if config.Args == nil {
			config.Args = def.Args
		}
	}
	if config.BlockedPatterns == nil {
		config.BlockedPatterns = def.BlockedPatterns
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &ExecPlayer{config: config, logger: logger.With(map[string]interface{}{"component": "player"})}
}

func (p *ExecPlayer) Play(ctx context.Context, clip core.AudioClip) error {
	f, err := os.CreateTemp(p.config.TempDir, "travelvoice-*"+extensionFor(clip.MimeType))
	if err != nil {
		return fmt.Errorf("player: temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		return fmt.Errorf("player: write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("player: write clip: %w", err)
	}

	args := append(append([]string(nil), p.config.Args...), path)
	return runOutput(ctx, p.config.Command, args, nil, p.config.BlockedPatterns)
}

// SpeechEngineConfig runs espeak-ng, or a compatible program, as the local
// speech engine.
type SpeechEngineConfig struct {
	Command         string   `json:"command" yaml:"command"`
	WordsPerMinute  int      `json:"words_per_minute" yaml:"words_per_minute"`
	BlockedPatterns []string `json:"blocked_patterns" yaml:"blocked_patterns"`
}

func DefaultSpeechEngineConfig() SpeechEngineConfig {
	return SpeechEngineConfig{
		Command:         "espeak-ng",
		WordsPerMinute:  175,
		BlockedPatterns: defaultBlockedPatterns,
	}
}

// ExecSpeechEngine implements SpeechEngine with espeak-ng.
type ExecSpeechEngine struct {
	config SpeechEngineConfig
}

func NewExecSpeechEngine(config SpeechEngineConfig) *ExecSpeechEngine {
	def := DefaultSpeechEngineConfig()
	if config.Command == "" {
		config.Command = def.Command
	}
	if config.WordsPerMinute <= 0 {
		config.WordsPerMinute = def.WordsPerMinute
	}
	if config.BlockedPatterns == nil {
		config.BlockedPatterns = def.BlockedPatterns
	}
	return &ExecSpeechEngine{config: config}
}

// Available reports whether the engine binary can be found.
func (e *ExecSpeechEngine) Available() bool {
	_, err := exec.LookPath(e.config.Command)
	return err == nil
}

func (e *ExecSpeechEngine) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.config.Command, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("speech engine: list voices: %w", err)
	}
	return parseVoices(out), nil
}

func (e *ExecSpeechEngine) Say(ctx context.Context, u Utterance) error {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	volume := u.Volume
	if volume <= 0 {
		volume = 1
	}
	args := []string{
		"-s", strconv.Itoa(int(float64(e.config.WordsPerMinute) * rate)),
		"-a", strconv.Itoa(int(volume * 100)),
	}
	switch {
	case u.Voice.ID != "":
		args = append(args, "-v", u.Voice.ID)
	case u.Lang != "":
		args = append(args, "-v", strings.ToLower(u.Lang))
	}
	return runOutput(ctx, e.config.Command, args, strings.NewReader(u.Text), e.config.BlockedPatterns)
}

// parseVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language  Age/Gender VoiceName  File    Other Languages
//	 5  pl        --/M       Polish     zlw/pl
func parseVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		voices = append(voices, Voice{
			ID:   fields[1],
			Name: strings.ReplaceAll(fields[3], "_", " "),
			Lang: fields[1],
		})
	}
	return voices
}

func runOutput(ctx context.Context, command string, args []string, stdin *strings.Reader, blocked []string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(stderr.String())
	for _, pattern := range blocked {
		if strings.Contains(msg, pattern) {
			return fmt.Errorf("%w: %s", ErrAutoplayBlocked, msg)
		}
	}
	if msg != "" {
		return fmt.Errorf("%s: %w: %s", command, err, msg)
	}
	return fmt.Errorf("%s: %w", command, err)
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	default:
		return ".audio"
	}
}
