package factories

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"travelvoice/client"
	"travelvoice/controlplane"
	"travelvoice/core"
	"travelvoice/metrics"
	"travelvoice/observer"
	"travelvoice/settings"
)

// App is a wired client together with its optional observer and control
// plane link.
type App struct {
	Client       *client.Client
	Observer     *observer.Server
	ControlPlane *controlplane.Client
	Registry     *prometheus.Registry
	Capabilities settings.Capabilities

	logger  *core.Logger
	closers []func() error
}

// Build resolves s, injects keys and constructs every component. The
// platform capabilities are probed here: streaming recognition is available
// when a recognizer is configured, local synthesis when the speech engine is
// installed.
func Build(ctx context.Context, s Settings, keys APIKeys, logger *core.Logger) (*App, error) {
	if logger == nil {
		logger = core.GetLogger()
	}
	if s.SettingsAPI != nil {
		fetched, err := s.SettingsAPI.Fetch()
		if err != nil {
			return nil, err
		}
		s = fetched
	}
	s.InjectAPIKeys(keys)
	if s.Client.Device == "" {
		s.Client.Device = settings.DeviceDesktop
	}

	app := &App{Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(app.Registry)

	if s.ControlPlane != nil {
		cfg := *s.ControlPlane
		if cfg.Device == "" {
			cfg.Device = string(s.Client.Device)
		}
		cfg.Logger = logger
		app.ControlPlane = controlplane.NewClient(cfg)
		writer := controlplane.NewWSLogWriter(app.ControlPlane)
		logger = core.NewSessionLogger(logger, writer)
		app.closers = append(app.closers, func() error { writer.Close(); return nil })
	}
	app.logger = logger.With(map[string]interface{}{"component": "app"})

	b, err := BuildBackend(s.Backend, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	store, closeStore, err := BuildStore(ctx, s.Store)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	strategies, recognition, err := BuildStrategies(s.Capture, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	// Remote synthesis reports segment failures through the client, which
	// does not exist yet.
	var target atomic.Pointer[client.Client]
	sink := core.EventSinkFunc(func(packet *core.EventPacket) {
		if c := target.Load(); c != nil {
			c.Publish(packet)
		}
	})
	synths := BuildSynthesizers(s.Playback, b, s.Client.Device == settings.DeviceMobile, sink, m, logger)

	app.Capabilities = settings.Capabilities{
		RecognitionAvailable: recognition,
		SynthesisAvailable:   synths.Local != nil,
	}
	config := s.Client
	config.Capabilities = app.Capabilities

	opts := client.Options{
		Backend:    b,
		Store:      store,
		Strategies: strategies,
		Remote:     synths.Remote,
		Metrics:    m,
	}
	if synths.Local != nil {
		opts.Local = synths.Local
	}
	c, err := client.New(config, opts, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	target.Store(c)
	app.Client = c

	if s.Observer != nil {
		app.Observer = observer.New(*s.Observer, c, app.Registry, logger)
		c.AddSink(app.Observer)
	}

	app.logger.Info("client built",
		"device", string(s.Client.Device),
		"recognition", app.Capabilities.RecognitionAvailable,
		"local_synthesis", app.Capabilities.SynthesisAvailable,
		"observer", app.Observer != nil,
		"control_plane", app.ControlPlane != nil,
	)
	return app, nil
}

// Run runs the client with the observer and the control plane link until
// ctx is cancelled or the hub asks for a shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var services []func(context.Context) error
	if a.Observer != nil {
		services = append(services, a.Observer.Run)
	}
	if a.ControlPlane != nil {
		controlplane.Bind(a.ControlPlane, a.Client, func(reason string) {
			a.logger.Info("shutting down", "reason", reason)
			a.Client.Publish(core.NewEventPacket(&core.ShutdownEvent{Reason: reason}, "App"))
			cancel()
		})
		services = append(services, a.ControlPlane.Run)
	}
	return a.Client.Run(ctx, services...)
}

// Close releases the store and ends the remote log stream.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
