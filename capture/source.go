package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"travelvoice/core"
)

// Format describes the raw stream an AudioSource produces.
type Format struct {
	Encoding   core.AudioEncodingFormat `json:"encoding"`
	SampleRate int                      `json:"sample_rate"`
	Channels   int                      `json:"channels"`
}

// BytesPerSecond is the stream's byte rate.
func (f Format) BytesPerSecond() int {
	width := 2
	if f.Encoding == core.ULAW || f.Encoding == core.ALAW {
		width = 1
	}
	return f.SampleRate * f.Channels * width
}

// AudioSource is the microphone. Open acquires it exclusively; closing the
// returned stream releases it.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Format() Format
}

// CommandConfig runs an external capture program that writes raw audio to
// stdout.
type CommandConfig struct {
	Command    string   `json:"command" yaml:"command"`
	Args       []string `json:"args" yaml:"args"`
	Encoding   string   `json:"encoding" yaml:"encoding"`
	SampleRate int      `json:"sample_rate" yaml:"sample_rate"`
	Channels   int      `json:"channels" yaml:"channels"`
}

// DefaultCommandConfig records 16 kHz mono signed 16-bit PCM with ALSA.
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Command:    "arecord",
		Encoding:   "pcm",
		SampleRate: 16000,
		Channels:   1,
	}
}

// CommandSource captures from a child process such as arecord or sox.
type CommandSource struct {
	config CommandConfig
	format Format
}

func NewCommandSource(config CommandConfig) (*CommandSource, error) {
	def := DefaultCommandConfig()
	if config.Command == "" {
		config.Command = def.Command
	}
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	if config.Encoding == "" {
		config.Encoding = def.Encoding
	}
	enc, ok := core.ParseAudioEncodingFormat(config.Encoding)
	if !ok {
		return nil, fmt.Errorf("capture: unsupported encoding %q", config.Encoding)
	}
	if config.Args == nil && config.Command == "arecord" {
		config.Args = arecordArgs(enc, config.SampleRate, config.Channels)
	}
	return &CommandSource{
		config: config,
		format: Format{Encoding: enc, SampleRate: config.SampleRate, Channels: config.Channels},
	}, nil
}

func arecordArgs(enc core.AudioEncodingFormat, rate, channels int) []string {
	sample := "S16_LE"
	switch enc {
	case core.ULAW:
		sample = "MU_LAW"
	case core.ALAW:
		sample = "A_LAW"
	}
	return []string{"-q", "-t", "raw", "-f", sample, "-r", strconv.Itoa(rate), "-c", strconv.Itoa(channels)}
}

func (s *CommandSource) Format() Format { return s.format }

func (s *CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	path, err := exec.LookPath(s.config.Command)
	if err != nil {
		return nil, fmt.Errorf("capture: microphone command %q unavailable: %w", s.config.Command, err)
	}
	cmd := exec.Command(path, s.config.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %s: %w", s.config.Command, err)
	}
	return &commandStream{cmd: cmd, stdout: stdout}, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	once   sync.Once
}

func (c *commandStream) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *commandStream) Close() error {
	var err error
	c.once.Do(func() {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		werr := c.cmd.Wait()
		var exitErr *exec.ExitError
		if werr != nil && !errors.As(werr, &exitErr) {
			err = werr
		}
	})
	return err
}

// ReaderSource adapts a stream factory, e.g. a file or a network stream.
type ReaderSource struct {
	open   func(ctx context.Context) (io.ReadCloser, error)
	format Format
}

func NewReaderSource(format Format, open func(ctx context.Context) (io.ReadCloser, error)) *ReaderSource {
	return &ReaderSource{open: open, format: format}
}

func (s *ReaderSource) Format() Format { return s.format }

func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return s.open(ctx)
}
