package playback

import (
	"context"
	"errors"

	"travelvoice/core"
	"travelvoice/settings"
)

// ErrAutoplayBlocked means the platform refused to start audio without a
// user gesture, or the output device could not be opened. The reply can be
// replayed with Engine.Retry.
var ErrAutoplayBlocked = errors.New("playback: audio output blocked")

// Request is one reply to render.
type Request struct {
	// Text is the normalized reply.
	Text string
	// Segments is Text split into sentences; remote synthesizers speak
	// them one by one.
	Segments []string
	Language settings.Language
	Model    settings.TTSModel
}

// Synthesizer renders a reply. Speak returns when playback has finished or
// ctx is cancelled; after a cancelled return nothing is audible anymore.
type Synthesizer interface {
	Name() string
	Speak(ctx context.Context, req Request) error
}

// Player plays one encoded clip and blocks until it has finished. Cancelling
// ctx stops it immediately.
type Player interface {
	Play(ctx context.Context, clip core.AudioClip) error
}

// Unlocker is implemented by synthesizers that need a user-gesture-triggered
// warm up before they may produce sound on some platforms.
type Unlocker interface {
	Unlock(ctx context.Context) error
}
