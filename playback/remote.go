package playback

import (
	"context"
	"errors"
	"time"

	"travelvoice/backend"
	"travelvoice/core"
	pbevents "travelvoice/events/playback"
	"travelvoice/metrics"
)

// Fetcher returns synthesized audio for one sentence; backend.Backend
// satisfies it.
type Fetcher interface {
	Synthesize(ctx context.Context, req backend.SpeechRequest) (core.AudioClip, error)
}

// RemoteSynthesizer fetches audio for every sentence at once and plays the
// results strictly in sentence order, so network latency overlaps playback.
type RemoteSynthesizer struct {
	fetcher Fetcher
	player  Player
	sink    core.EventSink
	metrics *metrics.Metrics
	logger  *core.Logger
}

func NewRemoteSynthesizer(fetcher Fetcher, player Player, sink core.EventSink, m *metrics.Metrics, logger *core.Logger) *RemoteSynthesizer {
	if sink == nil {
		sink = core.FanOut(nil)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &RemoteSynthesizer{
		fetcher: fetcher,
		player:  player,
		sink:    sink,
		metrics: m,
		logger:  logger.With(map[string]interface{}{"component": "remote_tts"}),
	}
}

func (r *RemoteSynthesizer) Name() string { return "remote" }

type fetchResult struct {
	clip core.AudioClip
	err  error
}

// Speak fails only on cancellation or a blocked output; sentences whose
// fetch or playback fails are skipped.
func (r *RemoteSynthesizer) Speak(ctx context.Context, req Request) error {
	// One abort signal shared by every fetch of this reply.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan fetchResult, len(req.Segments))
	for i, segment := range req.Segments {
		results[i] = make(chan fetchResult, 1)
		go func(ch chan<- fetchResult, text string) {
			start := time.Now()
			clip, err := r.fetcher.Synthesize(ctx, backend.SpeechRequest{Text: text, Language: req.Language, Model: req.Model})
			r.metrics.SegmentFetched(time.Since(start), err)
			ch <- fetchResult{clip: clip, err: err}
		}(results[i], segment)
	}

	for i, ch := range results {
		var res fetchResult
		select {
		case res = <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if res.err != nil {
			r.segmentFailed(i, res.err)
			continue
		}

		err := r.player.Play(ctx, res.clip)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAutoplayBlocked) {
			return err
		}
		if err != nil {
			r.segmentFailed(i, err)
		}
	}
	return nil
}

func (r *RemoteSynthesizer) segmentFailed(index int, err error) {
	r.logger.With(map[string]interface{}{"error": err, "segment": index}).Warn("skipping sentence")
	r.sink.Publish(core.NewEventPacket(&pbevents.SegmentFailedEvent{Index: index, Error: err.Error()}, "RemoteSynthesizer"))
}
