// Package health polls the backend health endpoint and reports
// connectivity changes.
package health

import (
	"context"
	"sync"
	"time"

	"travelvoice/core"
	hevents "travelvoice/events/health"
	"travelvoice/metrics"
)

// Checker probes the backend; backend.Backend satisfies it.
type Checker interface {
	Health(ctx context.Context) error
}

// Config holds configuration for Poller.
type Config struct {
	// Interval between probes. Default: 30s.
	Interval core.Duration `json:"interval" yaml:"interval"`
}

func DefaultConfig() Config {
	return Config{Interval: core.Duration(30 * time.Second)}
}

// Poller checks once immediately and then at a fixed interval. A
// ConnectivityChangedEvent is published for the first result and for every
// flip afterwards.
type Poller struct {
	checker  Checker
	interval time.Duration
	sink     core.EventSink
	metrics  *metrics.Metrics
	logger   *core.Logger

	mu        sync.Mutex
	known     bool
	connected bool
	lastErr   error
}

func NewPoller(checker Checker, config Config, sink core.EventSink, m *metrics.Metrics, logger *core.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if sink == nil {
		sink = core.FanOut(nil)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Poller{
		checker:  checker,
		interval: config.Interval.Std(),
		sink:     sink,
		metrics:  m,
		logger:   logger.With(map[string]interface{}{"component": "health"}),
	}
}

// Connected reports the result of the latest probe. It is false until the
// first probe has finished.
func (p *Poller) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check probes the backend once and records the result.
func (p *Poller) Check(ctx context.Context) bool {
	err := p.checker.Health(ctx)
	if ctx.Err() != nil {
		return p.Connected()
	}
	up := err == nil

	p.mu.Lock()
	changed := !p.known || p.connected != up
	p.known = true
	p.connected = up
	p.lastErr = err
	p.mu.Unlock()

	p.metrics.SetBackendUp(up)
	if !changed {
		return up
	}

	event := &hevents.ConnectivityChangedEvent{Connected: up}
	if up {
		p.logger.Info("backend reachable")
	} else {
		event.Error = err.Error()
		p.logger.With(map[string]interface{}{"error": err}).Warn("backend unreachable")
	}
	p.sink.Publish(core.NewEventPacket(event, "HealthPoller"))
	return up
}
