package playback

import (
	"context"
	"sync"
	"time"

	"travelvoice/backend"
	"travelvoice/core"
)

type eventLog struct {
	mu     sync.Mutex
	events []core.IEvent
}

func (l *eventLog) Publish(p *core.EventPacket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p.Event)
}

func (l *eventLog) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.GetId()
	}
	return out
}

func (l *eventLog) has(id string) bool {
	for _, got := range l.ids() {
		if got == id {
			return true
		}
	}
	return false
}

// fakeFetcher returns the request text as the clip payload after a
// per-sentence delay. When gate is set every fetch waits for it to close.
type fakeFetcher struct {
	delays map[string]time.Duration
	errs   map[string]error
	gate   chan struct{}

	mu       sync.Mutex
	started  int
	inFlight int
	peak     int
}

func (f *fakeFetcher) Synthesize(ctx context.Context, req backend.SpeechRequest) (core.AudioClip, error) {
	f.mu.Lock()
	f.started++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return core.AudioClip{}, ctx.Err()
		}
	}
	if d := f.delays[req.Text]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return core.AudioClip{}, ctx.Err()
		}
	}
	if err := f.errs[req.Text]; err != nil {
		return core.AudioClip{}, err
	}
	return core.AudioClip{Data: []byte(req.Text), MimeType: "audio/wav"}, nil
}

// fakePlayer records the order of played clips and the peak number of
// clips playing at once.
type fakePlayer struct {
	duration time.Duration
	errs     map[string]error

	mu      sync.Mutex
	played  []string
	playing int
	peak    int
	started chan string
}

func newFakePlayer(d time.Duration) *fakePlayer {
	return &fakePlayer{duration: d, started: make(chan string, 64)}
}

func (f *fakeFetcher) counts() (started, peak int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.peak
}

func (p *fakePlayer) Play(ctx context.Context, clip core.AudioClip) error {
	text := string(clip.Data)
	p.mu.Lock()
	p.playing++
	if p.playing > p.peak {
		p.peak = p.playing
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.playing--
		p.mu.Unlock()
	}()

	select {
	case p.started <- text:
	default:
	}
	if err := p.errs[text]; err != nil {
		return err
	}
	select {
	case <-time.After(p.duration):
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	p.played = append(p.played, text)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) snapshot() ([]string, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...), p.playing, p.peak
}

type fakeEngine struct {
	voices  []Voice
	sayErr  error
	sayTime time.Duration

	mu      sync.Mutex
	said    []Utterance
	resumes int
	lists   int
}

func (e *fakeEngine) Voices(context.Context) ([]Voice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lists++
	return e.voices, nil
}

func (e *fakeEngine) Say(ctx context.Context, u Utterance) error {
	e.mu.Lock()
	e.said = append(e.said, u)
	sayErr := e.sayErr
	e.mu.Unlock()
	if e.sayTime > 0 {
		select {
		case <-time.After(e.sayTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sayErr
}

func (e *fakeEngine) failSay(err error) {
	e.mu.Lock()
	e.sayErr = err
	e.mu.Unlock()
}

func (e *fakeEngine) utterances() []Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Utterance(nil), e.said...)
}

// resumingEngine is a fakeEngine that can be kicked.
type resumingEngine struct {
	*fakeEngine
}

func (r resumingEngine) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes++
	return nil
}
