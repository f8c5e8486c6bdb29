// Package client is the voice chat client: it owns the capture controllers,
// the dispatch pipeline, the playback engine and the health poller, and
// serializes their events on one loop.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"travelvoice/assembler"
	"travelvoice/backend"
	"travelvoice/capture"
	"travelvoice/conversation"
	"travelvoice/core"
	"travelvoice/dispatch"
	capevents "travelvoice/events/capture"
	"travelvoice/health"
	"travelvoice/metrics"
	"travelvoice/playback"
	"travelvoice/settings"
)

// ErrNoCapture is returned when no capture strategy serves the selected
// recognition model.
var ErrNoCapture = errors.New("client: no capture strategy for the selected model")

// Config holds configuration for Client.
type Config struct {
	Settings     settings.SpeechSettings `json:"settings" yaml:"settings"`
	Capabilities settings.Capabilities   `json:"capabilities" yaml:"capabilities"`
	Device       settings.Device         `json:"device" yaml:"device"`
	// SilenceDelay is the mobile end-of-utterance delay. Default: 2s.
	SilenceDelay core.Duration `json:"silence_delay" yaml:"silence_delay"`
	Health       health.Config `json:"health" yaml:"health"`
}

// Options are the collaborators of a Client. Strategies maps each
// recognition model to the capture strategy serving it; Remote and Local
// may be nil when unavailable.
type Options struct {
	Backend    backend.Backend
	Store      conversation.Store
	Strategies map[settings.STTModel]capture.Strategy
	Remote     playback.Synthesizer
	Local      playback.Synthesizer
	Metrics    *metrics.Metrics
}

// Status is a snapshot of what a user interface would render.
type Status struct {
	Capture     string                  `json:"capture"`
	Strategy    string                  `json:"strategy,omitempty"`
	Processing  bool                    `json:"processing"`
	Speaking    bool                    `json:"speaking"`
	ManualRetry bool                    `json:"manual_retry"`
	Connected   bool                    `json:"connected"`
	LastError   core.ErrorKind          `json:"last_error,omitempty"`
	Settings    settings.SpeechSettings `json:"settings"`
	Profile     string                  `json:"profile"`
	Device      settings.Device         `json:"device"`
	Messages    int                     `json:"messages"`
}

// Client is safe for concurrent use. Commands may be issued before Run, but
// recording and dispatch need the loops that Run starts.
type Client struct {
	config      Config
	log         *conversation.Log
	engine      *playback.Engine
	pipeline    *dispatch.Pipeline
	poller      *health.Poller
	controllers map[settings.STTModel]*capture.Controller
	metrics     *metrics.Metrics
	logger      *core.Logger

	queue      *queue
	dispatches sync.WaitGroup

	mu        sync.Mutex
	settings  settings.SpeechSettings
	lastError core.ErrorKind
	sinks     []core.EventSink
}

// New wires a client. The settings in config are validated and the
// capability cascades applied before use.
func New(config Config, opts Options, logger *core.Logger) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New("client: backend is required")
	}
	if err := config.Settings.Validate(); err != nil {
		return nil, err
	}
	if config.Device == "" {
		config.Device = settings.DeviceDesktop
	}
	if config.SilenceDelay <= 0 {
		config.SilenceDelay = core.Duration(assembler.DefaultSilenceDelay)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	mobile := config.Device == settings.DeviceMobile

	c := &Client{
		config:      config,
		settings:    config.Settings.Apply(config.Capabilities),
		controllers: make(map[settings.STTModel]*capture.Controller),
		metrics:     opts.Metrics,
		queue:       newQueue(),
		logger:      logger.With(map[string]interface{}{"component": "client", "device": string(config.Device)}),
	}
	c.log = conversation.NewLog(opts.Store, logger)
	c.engine = playback.NewEngine(opts.Remote, opts.Local, mobile, c.settings, c, opts.Metrics, logger)
	c.pipeline = dispatch.NewPipeline(opts.Backend, c.log, c.engine, c, opts.Metrics, logger)
	c.poller = health.NewPoller(opts.Backend, config.Health, c, opts.Metrics, logger)

	policy := assembler.Desktop
	if mobile {
		policy = assembler.Mobile
	}
	for model, strategy := range opts.Strategies {
		if strategy == nil {
			continue
		}
		ctrl := capture.NewController(strategy, capture.Config{
			Policy:       policy,
			SilenceDelay: config.SilenceDelay.Std(),
		}, &controllerSink{client: c, model: model}, c.engine, logger)
		ctrl.SetLanguage(c.settings.Language.Locale())
		c.controllers[model] = ctrl
	}
	return c, nil
}

// AddSink registers an observer for every event the client emits. Sinks
// are called synchronously and must not block.
func (c *Client) AddSink(sink core.EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
}

// Publish implements core.EventSink for the client's own components.
func (c *Client) Publish(packet *core.EventPacket) {
	c.route(packet, "")
}

// Run restores the conversation and runs the capture controllers, the health
// poller, the event loop and any extra services until ctx is cancelled or
// one of them fails.
func (c *Client) Run(ctx context.Context, services ...func(context.Context) error) error {
	c.log.Restore(ctx, c.Settings().Language)

	g, gctx := errgroup.WithContext(ctx)
	for _, ctrl := range c.controllers {
		g.Go(func() error { return ctrl.Run(gctx) })
	}
	g.Go(func() error { return c.poller.Run(gctx) })
	g.Go(func() error { return c.loop(gctx) })
	for _, svc := range services {
		g.Go(func() error { return svc(gctx) })
	}

	c.logger.Info("client running", "controllers", len(c.controllers))
	err := g.Wait()
	c.engine.Cancel()
	c.dispatches.Wait()
	c.logger.Info("client stopped")
	return err
}

func (c *Client) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.queue.notify:
			for _, item := range c.queue.take() {
				c.handle(ctx, item)
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, item queued) {
	switch e := item.packet.Event.(type) {
	case *capevents.UtteranceEvent:
		lang := c.Settings().Language
		c.dispatchAsync(ctx, item.model, func(ctx context.Context) error {
			_, err := c.pipeline.SendText(ctx, lang, e.Text)
			return err
		})
	case *capevents.AudioUtteranceEvent:
		lang := c.Settings().Language
		clip := core.AudioClip{Data: e.Audio, MimeType: e.MimeType}
		c.dispatchAsync(ctx, item.model, func(ctx context.Context) error {
			_, err := c.pipeline.SendAudio(ctx, lang, clip)
			return err
		})
	case *capevents.CaptureFailedEvent:
		kind := core.ErrorKindRecognizer
		if e.Device {
			kind = core.ErrorKindMicrophone
		}
		c.setError(kind, errors.New(e.Error))
	}
}

// dispatchAsync runs one round trip off the loop and returns the capture
// controller that produced the utterance to idle afterwards.
func (c *Client) dispatchAsync(ctx context.Context, model settings.STTModel, send func(context.Context) error) {
	c.clearError()
	c.dispatches.Add(1)
	go func() {
		defer c.dispatches.Done()
		if err := send(ctx); err != nil {
			c.sendFailed(err)
		}
		if ctrl := c.controllers[model]; ctrl != nil {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := ctrl.Release(releaseCtx); err != nil && !errors.Is(err, capture.ErrClosed) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("failed to release capture controller")
			}
		}
	}()
}

// sendFailed maps dispatch errors that the pipeline does not report itself.
func (c *Client) sendFailed(err error) {
	switch {
	case errors.Is(err, dispatch.ErrInFlight):
		c.setError(core.ErrorKindBusy, err)
	case errors.Is(err, dispatch.ErrEmptyText):
		c.logger.Debug("dropped empty utterance")
	}
}

// route forwards a packet to the external sinks and queues the ones the
// loop reacts to.
func (c *Client) route(packet *core.EventPacket, model settings.STTModel) {
	if e, ok := packet.Event.(*core.ErrorEvent); ok {
		c.mu.Lock()
		c.lastError = e.Kind
		c.mu.Unlock()
	}

	c.mu.Lock()
	sinks := append([]core.EventSink(nil), c.sinks...)
	c.mu.Unlock()
	for _, s := range sinks {
		s.Publish(packet)
	}

	switch packet.Event.(type) {
	case *capevents.UtteranceEvent, *capevents.AudioUtteranceEvent, *capevents.CaptureFailedEvent:
		c.queue.push(queued{packet: packet, model: model})
	}
}

func (c *Client) setError(kind core.ErrorKind, err error) {
	c.logger.With(map[string]interface{}{"error": err, "kind": string(kind)}).Warn("client error")
	c.publish(&core.ErrorEvent{Kind: kind, Error: err.Error()})
}

func (c *Client) clearError() {
	c.mu.Lock()
	c.lastError = ""
	c.mu.Unlock()
}

func (c *Client) publish(event core.IEvent) {
	c.Publish(core.NewEventPacket(event, "Client"))
}

// controllerSink remembers which controller an event came from.
type controllerSink struct {
	client *Client
	model  settings.STTModel
}

func (s *controllerSink) Publish(packet *core.EventPacket) {
	s.client.route(packet, s.model)
}

type queued struct {
	packet *core.EventPacket
	model  settings.STTModel
}

type queue struct {
	mu     sync.Mutex
	items  []queued
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(item queued) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) take() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
