package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelvoice/backend"
	"travelvoice/client"
	"travelvoice/core"
	"travelvoice/settings"
)

type echoBackend struct{}

func (echoBackend) Health(context.Context) error { return nil }

func (echoBackend) Chat(_ context.Context, req backend.ChatRequest) (backend.ChatResponse, error) {
	return backend.ChatResponse{Response: "Plan for " + req.Text}, nil
}

func (echoBackend) ProcessAudio(context.Context, backend.AudioRequest) (backend.AudioResponse, error) {
	return backend.AudioResponse{}, backend.ErrEmptyReply
}

func (echoBackend) Synthesize(context.Context, backend.SpeechRequest) (core.AudioClip, error) {
	return core.AudioClip{}, backend.ErrUnavailable
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestREPL_Commands(t *testing.T) {
	c, err := client.New(client.Config{Settings: settings.Default()}, client.Options{Backend: echoBackend{}}, core.NewNopLogger())
	require.NoError(t, err)

	out := &syncBuffer{}
	r := newREPL(c, strings.NewReader(""), out)
	c.AddSink(r)
	ctx := context.Background()

	assert.True(t, r.execute(ctx, "Rome"))
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "[assistant] Plan for Rome") }, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "[user] Rome")

	assert.True(t, r.execute(ctx, "/lang pl"))
	assert.Contains(t, out.String(), "-- new conversation (pl)")
	assert.Equal(t, settings.Polish, c.Settings().Language)

	assert.True(t, r.execute(ctx, "/tts maybe"))
	assert.Contains(t, out.String(), "usage: /tts on|off")

	assert.True(t, r.execute(ctx, "/profile empathetic"))
	assert.True(t, c.Settings().EnableEmotions)

	assert.True(t, r.execute(ctx, "/rec"))
	assert.Contains(t, out.String(), "no capture strategy")

	assert.True(t, r.execute(ctx, "/retry"))
	assert.Contains(t, out.String(), "nothing to replay")

	assert.True(t, r.execute(ctx, "/dance"))
	assert.Contains(t, out.String(), "unknown command /dance")

	assert.False(t, r.execute(ctx, "/quit"))
}

func TestREPL_RunStopsAtEOF(t *testing.T) {
	c, err := client.New(client.Config{Settings: settings.Default()}, client.Options{Backend: echoBackend{}}, core.NewNopLogger())
	require.NoError(t, err)

	out := &syncBuffer{}
	r := newREPL(c, strings.NewReader("/status\n"), out)
	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("repl did not stop at EOF")
	}
	assert.Contains(t, out.String(), "language=en")
}
