package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelvoice/assembler"
	"travelvoice/core"
	capevents "travelvoice/events/capture"
	"travelvoice/utils/audio"
)

type State int

const (
	Idle State = iota
	Recording
	Dispatching
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Dispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// Canceler stops whatever is currently audible. Starting a recording always
// silences playback first.
type Canceler interface {
	Cancel()
}

// Config holds configuration for Controller.
type Config struct {
	Policy assembler.Policy `json:"policy"`
	// SilenceDelay is the mobile completion delay. Default: 2s.
	SilenceDelay time.Duration `json:"silence_delay"`
	// StopTimeout bounds releasing the device after an automatic stop.
	StopTimeout time.Duration `json:"stop_timeout"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Policy:       assembler.Desktop,
		SilenceDelay: assembler.DefaultSilenceDelay,
		StopTimeout:  5 * time.Second,
	}
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdAbort
	cmdRelease
)

type command struct {
	kind  commandKind
	ctx   context.Context
	reply chan error
}

// Controller is the capture state machine Idle -> Recording -> (Dispatching | Idle).
// All transitions happen on the goroutine running Run; Start, Stop, Abort and
// Release are requests to that loop.
type Controller struct {
	config   Config
	strategy Strategy
	sink     core.EventSink
	canceler Canceler
	logger   *core.Logger

	commands chan command
	inbox    *inbox
	done     chan struct{}

	// Owned by the loop.
	assembler *assembler.Assembler
	debounce  *assembler.Debouncer
	session   string

	mu    sync.RWMutex
	state State
}

// NewController creates a controller around one capture strategy. canceler
// may be nil.
func NewController(strategy Strategy, config Config, sink core.EventSink, canceler Canceler, logger *core.Logger) *Controller {
	if config.SilenceDelay <= 0 {
		config.SilenceDelay = assembler.DefaultSilenceDelay
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = core.FanOut(nil)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Controller{
		config:    config,
		strategy:  strategy,
		sink:      sink,
		canceler:  canceler,
		logger:    logger.With(map[string]interface{}{"component": "capture", "strategy": strategy.Name(), "policy": config.Policy.String()}),
		commands:  make(chan command),
		inbox:     newInbox(),
		done:      make(chan struct{}),
		assembler: assembler.New(config.Policy),
		debounce:  assembler.NewDebouncer(config.SilenceDelay),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Strategy returns the name of the capture strategy.
func (c *Controller) Strategy() string {
	return c.strategy.Name()
}

// SetLanguage forwards the recognition locale to strategies that use one.
// It applies from the next session.
func (c *Controller) SetLanguage(locale string) {
	if ls, ok := c.strategy.(LanguageSetter); ok {
		ls.SetLanguage(locale)
	}
}

// Start begins a new capture session. It fails with ErrSessionActive unless
// the controller is idle, and wraps the strategy's error when the device
// cannot be acquired.
func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, cmdStart)
}

// Stop ends the session and flushes whatever was captured.
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, cmdStop)
}

// Abort ends the session and discards pending transcript state.
func (c *Controller) Abort(ctx context.Context) error {
	return c.do(ctx, cmdAbort)
}

// Release returns a dispatching controller to idle once the utterance's
// round trip is over.
func (c *Controller) Release(ctx context.Context) error {
	return c.do(ctx, cmdRelease)
}

func (c *Controller) do(ctx context.Context, kind commandKind) error {
	cmd := command{kind: kind, ctx: ctx, reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Run is the controller's event loop. It returns when ctx is cancelled,
// releasing the device if a session is still recording.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			if c.State() == Recording {
				c.teardown(context.Background(), "shutdown")
			}
			c.debounce.Stop()
			return nil
		case cmd := <-c.commands:
			cmd.reply <- c.handleCommand(cmd)
		case <-c.inbox.notify:
			for _, in := range c.inbox.take() {
				c.handleInput(in)
			}
		case gen := <-c.debounce.C:
			if c.debounce.Take(gen) {
				c.onSilence()
			}
		}
	}
}

func (c *Controller) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return c.start(cmd.ctx)
	case cmdStop:
		return c.stop(cmd.ctx)
	case cmdAbort:
		if c.State() != Recording {
			return nil
		}
		c.teardown(cmd.ctx, "aborted")
		c.setState(Idle)
		return nil
	case cmdRelease:
		if c.State() == Dispatching {
			c.setState(Idle)
		}
		return nil
	}
	return fmt.Errorf("capture: unknown command %d", cmd.kind)
}

func (c *Controller) start(ctx context.Context) error {
	if c.State() != Idle {
		return ErrSessionActive
	}
	if c.canceler != nil {
		c.canceler.Cancel()
	}

	c.assembler.Reset()
	c.debounce.Stop()
	c.inbox.take()

	id := uuid.New().String()
	if err := c.strategy.Start(ctx, &sessionSink{id: id, inbox: c.inbox}); err != nil {
		c.logger.With(map[string]interface{}{"error": err}).Warn("failed to acquire capture device")
		c.publish(&capevents.CaptureFailedEvent{SessionID: id, Error: err.Error(), Device: true})
		return fmt.Errorf("capture: start %s: %w", c.strategy.Name(), err)
	}

	c.session = id
	c.setState(Recording)
	c.logger.Info("capture session started", "session_id", id)
	c.publish(&capevents.CaptureStartedEvent{SessionID: id, Strategy: c.strategy.Name()})
	return nil
}

// stop is the manual stop: release the device, then flush the transcript or
// hand over the recorded clip using the same rules as automatic completion.
func (c *Controller) stop(ctx context.Context) error {
	if c.State() != Recording {
		return ErrNotRecording
	}
	c.debounce.Stop()

	clip, decided, stopErr := c.release(ctx)
	if stopErr != nil {
		c.logger.With(map[string]interface{}{"error": stopErr}).Warn("capture strategy stop failed")
	}

	if clip != nil {
		c.handOverAudio(*clip)
		return nil
	}
	if decided != "" {
		c.handOverText(decided, "stopped")
		return nil
	}
	if text, ok := c.assembler.Flush(); ok {
		c.handOverText(text, "stopped")
		return nil
	}
	c.setState(Idle)
	c.publish(&capevents.CaptureStoppedEvent{SessionID: c.session, Reason: "stopped"})
	return nil
}

// release stops the strategy and drains what it delivered while stopping.
// A recorded clip is returned; recognizer results are fed to the assembler,
// and decided is set when one of them completed the utterance.
func (c *Controller) release(ctx context.Context) (clip *core.AudioClip, decided string, err error) {
	err = c.strategy.Stop(ctx)

	for _, in := range c.inbox.take() {
		if in.session != c.session {
			continue
		}
		switch in.kind {
		case inputAudio:
			cp := in.clip
			clip = &cp
		case inputResult:
			if out := c.assembler.Feed(in.result); out.Action == assembler.ActionDispatch {
				decided = out.Text
			}
		case inputError:
			if !errors.Is(in.err, ErrNoSpeech) {
				c.logger.With(map[string]interface{}{"error": in.err}).Debug("capture error while stopping")
			}
		}
	}
	return clip, decided, err
}

func (c *Controller) teardown(ctx context.Context, reason string) {
	c.debounce.Stop()
	if _, _, err := c.release(ctx); err != nil {
		c.logger.With(map[string]interface{}{"error": err}).Warn("capture strategy stop failed")
	}
	c.assembler.Reset()
	c.publish(&capevents.CaptureStoppedEvent{SessionID: c.session, Reason: reason})
}

func (c *Controller) handleInput(in input) {
	if in.session != c.session || c.State() != Recording {
		return
	}
	switch in.kind {
	case inputResult:
		c.onResult(in.result)
	case inputAudio:
		// Audio strategies deliver on Stop; an early clip means the source
		// ended by itself.
		ctx, cancel := context.WithTimeout(context.Background(), c.config.StopTimeout)
		defer cancel()
		c.debounce.Stop()
		if _, _, err := c.release(ctx); err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("capture strategy stop failed")
		}
		c.handOverAudio(in.clip)
	case inputError:
		c.onError(in.err)
	}
}

func (c *Controller) onResult(result assembler.Result) {
	out := c.assembler.Feed(result)
	if out.Interim != "" || out.Pending != "" {
		c.publish(&capevents.InterimTranscriptEvent{SessionID: c.session, Text: out.Interim, Pending: out.Pending})
	}

	switch out.Action {
	case assembler.ActionDispatch:
		c.completeWith(out.Text, "utterance")
	case assembler.ActionArmSilence:
		c.debounce.Arm()
	}
}

func (c *Controller) onSilence() {
	if c.State() != Recording {
		return
	}
	text, ok := c.assembler.Flush()
	if !ok {
		// Nothing usable yet; keep listening.
		return
	}
	c.completeWith(text, "silence")
}

// completeWith stops the device after automatic completion and hands over
// text that was already decided.
func (c *Controller) completeWith(text, reason string) {
	c.debounce.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), c.config.StopTimeout)
	defer cancel()
	if _, _, err := c.release(ctx); err != nil {
		c.logger.With(map[string]interface{}{"error": err}).Warn("capture strategy stop failed")
	}
	c.handOverText(text, reason)
}

func (c *Controller) onError(err error) {
	if errors.Is(err, ErrNoSpeech) {
		c.logger.Debug("recognizer reported no speech, still listening")
		return
	}
	c.logger.With(map[string]interface{}{"error": err}).Warn("recognizer failed, aborting capture session")

	ctx, cancel := context.WithTimeout(context.Background(), c.config.StopTimeout)
	defer cancel()
	c.teardown(ctx, "error")
	c.setState(Idle)
	c.publish(&capevents.CaptureFailedEvent{SessionID: c.session, Error: err.Error()})
}

func (c *Controller) handOverText(text, reason string) {
	c.setState(Dispatching)
	c.logger.Info("utterance complete", "session_id", c.session, "reason", reason, "chars", len(text))
	c.publish(&capevents.CaptureStoppedEvent{SessionID: c.session, Reason: reason})
	c.publish(&capevents.UtteranceEvent{SessionID: c.session, Text: text})
}

func (c *Controller) handOverAudio(clip core.AudioClip) {
	if len(clip.Data) == 0 {
		c.setState(Idle)
		c.publish(&capevents.CaptureStoppedEvent{SessionID: c.session, Reason: "empty"})
		return
	}
	seconds := 0.0
	if pcm, channels, rate, err := audio.DecodeWAV(clip.Data); err == nil {
		seconds, _ = audio.GetPCMDurationSeconds(pcm, channels, rate)
	}
	c.setState(Dispatching)
	c.logger.Info("audio utterance complete", "session_id", c.session, "bytes", len(clip.Data), "seconds", seconds)
	c.publish(&capevents.CaptureStoppedEvent{SessionID: c.session, Reason: "stopped"})
	c.publish(&capevents.AudioUtteranceEvent{SessionID: c.session, Audio: clip.Data, MimeType: clip.MimeType, Seconds: seconds})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) publish(event core.IEvent) {
	c.sink.Publish(core.NewEventPacket(event, "CaptureController"))
}
