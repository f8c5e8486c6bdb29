package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelvoice/core"
	pbevents "travelvoice/events/playback"
	"travelvoice/settings"
)

func TestRemoteSynthesizer_PlaysInSentenceOrder(t *testing.T) {
	// Later sentences arrive first.
	fetcher := &fakeFetcher{delays: map[string]time.Duration{
		"one.":   60 * time.Millisecond,
		"two.":   30 * time.Millisecond,
		"three.": 0,
	}}
	player := newFakePlayer(time.Millisecond)
	r := NewRemoteSynthesizer(fetcher, player, nil, nil, core.NewNopLogger())

	err := r.Speak(context.Background(), Request{
		Segments: []string{"one.", "two.", "three."},
		Language: settings.English,
		Model:    settings.TTSPiper,
	})
	require.NoError(t, err)

	played, _, peak := player.snapshot()
	assert.Equal(t, []string{"one.", "two.", "three."}, played)
	assert.Equal(t, 1, peak)
}

func TestRemoteSynthesizer_FetchesAllSegmentsBeforePlaying(t *testing.T) {
	fetcher := &fakeFetcher{gate: make(chan struct{})}
	player := newFakePlayer(time.Millisecond)
	r := NewRemoteSynthesizer(fetcher, player, nil, nil, core.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() {
		done <- r.Speak(ctx, Request{Segments: []string{"a.", "b.", "c.", "d."}})
	}()

	require.Eventually(t, func() bool {
		started, _ := fetcher.counts()
		return started == 4
	}, 2*time.Second, 5*time.Millisecond, "every segment fetch should start before any clip plays")
	played, _, _ := player.snapshot()
	assert.Empty(t, played)

	close(fetcher.gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("speak did not finish")
	}
	_, peak := fetcher.counts()
	assert.Equal(t, 4, peak)
	played, _, _ = player.snapshot()
	assert.Equal(t, []string{"a.", "b.", "c.", "d."}, played)
}

func TestRemoteSynthesizer_SkipsFailedSegment(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{"2": errors.New("502")}}
	player := newFakePlayer(time.Millisecond)
	events := &eventLog{}
	r := NewRemoteSynthesizer(fetcher, player, events, nil, core.NewNopLogger())

	err := r.Speak(context.Background(), Request{Segments: []string{"1", "2", "3"}})
	require.NoError(t, err)

	played, _, _ := player.snapshot()
	assert.Equal(t, []string{"1", "3"}, played)
	require.Len(t, events.events, 1)
	failed, ok := events.events[0].(*pbevents.SegmentFailedEvent)
	require.True(t, ok)
	assert.Equal(t, 1, failed.Index)
}

func TestRemoteSynthesizer_SkipsUnplayableSegment(t *testing.T) {
	player := newFakePlayer(time.Millisecond)
	player.errs = map[string]error{"a": errors.New("decode error")}
	r := NewRemoteSynthesizer(&fakeFetcher{}, player, nil, nil, core.NewNopLogger())

	require.NoError(t, r.Speak(context.Background(), Request{Segments: []string{"a", "b"}}))
	played, _, _ := player.snapshot()
	assert.Equal(t, []string{"b"}, played)
}

func TestRemoteSynthesizer_BlockedEndsReply(t *testing.T) {
	player := newFakePlayer(time.Millisecond)
	player.errs = map[string]error{"a": ErrAutoplayBlocked}
	r := NewRemoteSynthesizer(&fakeFetcher{}, player, nil, nil, core.NewNopLogger())

	err := r.Speak(context.Background(), Request{Segments: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrAutoplayBlocked)
	played, _, _ := player.snapshot()
	assert.Empty(t, played)
}

func TestRemoteSynthesizer_CancelStopsPlayback(t *testing.T) {
	player := newFakePlayer(time.Second)
	r := NewRemoteSynthesizer(&fakeFetcher{}, player, nil, nil, core.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Speak(ctx, Request{Segments: []string{"a", "b"}}) }()

	select {
	case <-player.started:
	case <-time.After(time.Second):
		t.Fatal("playback never started")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("speak did not return after cancel")
	}
	played, playing, _ := player.snapshot()
	assert.Empty(t, played)
	assert.Zero(t, playing)
}
