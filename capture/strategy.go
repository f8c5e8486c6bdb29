// Package capture owns the lifecycle of one recording attempt: acquiring the
// microphone or recognizer, routing what it produces through the transcript
// assembler, and handing a finished utterance onward exactly once.
package capture

import (
	"context"
	"errors"
	"sync"

	"travelvoice/assembler"
	"travelvoice/core"
)

var (
	// ErrSessionActive is returned by Start while a session is recording or
	// its utterance is still being dispatched.
	ErrSessionActive = errors.New("capture session already active")
	// ErrNotRecording is returned by Stop when there is nothing to stop.
	ErrNotRecording = errors.New("capture session is not recording")
	// ErrNoSpeech is a transient recognizer condition; sessions ignore it.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrClosed is returned once the controller's loop has exited.
	ErrClosed = errors.New("capture controller closed")
)

// Sink receives what a strategy captures. Implementations never block.
type Sink interface {
	OnResult(result assembler.Result)
	OnAudio(clip core.AudioClip)
	OnError(err error)
}

// Strategy is a capture backend selected by configuration.
type Strategy interface {
	Name() string
	// Start acquires the device. On error the session never starts.
	Start(ctx context.Context, sink Sink) error
	// Stop releases the device. Everything the strategy has to deliver,
	// including a recorded clip, reaches the sink before Stop returns.
	Stop(ctx context.Context) error
}

// LanguageSetter is implemented by strategies that recognize speech on the
// client side and need the recognition locale.
type LanguageSetter interface {
	SetLanguage(locale string)
}

type inputKind int

const (
	inputResult inputKind = iota
	inputAudio
	inputError
)

type input struct {
	session string
	kind    inputKind
	result  assembler.Result
	clip    core.AudioClip
	err     error
}

// inbox is an unbounded queue between strategy goroutines and the loop.
type inbox struct {
	mu     sync.Mutex
	items  []input
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (b *inbox) push(in input) {
	b.mu.Lock()
	b.items = append(b.items, in)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *inbox) take() []input {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// sessionSink tags everything a strategy reports with the session that
// started it, so late callbacks from a torn down session are dropped.
type sessionSink struct {
	id    string
	inbox *inbox
}

func (s *sessionSink) OnResult(result assembler.Result) {
	s.inbox.push(input{session: s.id, kind: inputResult, result: result})
}

func (s *sessionSink) OnAudio(clip core.AudioClip) {
	s.inbox.push(input{session: s.id, kind: inputAudio, clip: clip})
}

func (s *sessionSink) OnError(err error) {
	s.inbox.push(input{session: s.id, kind: inputError, err: err})
}
