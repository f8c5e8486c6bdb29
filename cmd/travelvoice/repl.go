package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"travelvoice/client"
	"travelvoice/core"
	capevents "travelvoice/events/capture"
	convevents "travelvoice/events/conversation"
	healthevents "travelvoice/events/health"
	pbevents "travelvoice/events/playback"
	"travelvoice/settings"
)

const helpText = `commands:
  <text>             send a message
  /rec               start or stop recording
  /new               start a new chat
  /lang pl|en        switch language
  /tts on|off        spoken replies
  /profile NAME      fast or empathetic
  /retry             replay a blocked reply
  /stop              stop playback
  /status            show client status
  /history           show the conversation
  /quit              exit`

// repl is the line-oriented front end. It also prints client events, so it
// is registered as a sink.
type repl struct {
	client *client.Client
	in     io.Reader

	mu  sync.Mutex
	out io.Writer
}

func newREPL(c *client.Client, in io.Reader, out io.Writer) *repl {
	return &repl{client: c, in: in, out: out}
}

// Run reads commands until EOF, /quit or ctx is cancelled.
func (r *repl) Run(ctx context.Context) {
	r.printf("%s\n", helpText)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !r.execute(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// execute runs one line and reports whether to keep reading.
func (r *repl) execute(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		go func() {
			if _, err := r.client.SendText(ctx, line); err != nil {
				r.printf("! %v\n", err)
			}
		}()
		return true
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		r.printf("%s\n", helpText)
	case "rec":
		err = r.client.ToggleRecording(ctx)
	case "new":
		err = r.client.NewChat(ctx)
	case "lang":
		_, err = r.client.SetLanguage(ctx, settings.Language(arg))
	case "tts":
		switch arg {
		case "on", "off":
			_, err = r.client.SetTTSEnabled(ctx, arg == "on")
		default:
			err = errors.New("usage: /tts on|off")
		}
	case "profile":
		_, err = r.client.ApplyProfile(ctx, arg)
	case "retry":
		if !r.client.RetryPlayback(ctx) {
			err = errors.New("nothing to replay")
		}
	case "stop":
		r.client.StopPlayback()
	case "status":
		st := r.client.Status()
		r.printf("capture=%s processing=%t speaking=%t connected=%t profile=%s language=%s stt=%s tts=%s spoken=%t error=%s\n",
			st.Capture, st.Processing, st.Speaking, st.Connected, st.Profile,
			st.Settings.Language, st.Settings.STTModel, st.Settings.TTSModel, st.Settings.EnableTTS, st.LastError)
	case "history":
		for _, msg := range r.client.Messages() {
			r.printf("[%s] %s\n", msg.Role, msg.Text)
		}
	default:
		err = fmt.Errorf("unknown command /%s, try /help", cmd)
	}
	if err != nil {
		r.printf("! %v\n", err)
	}
	return true
}

func (r *repl) Publish(packet *core.EventPacket) {
	switch e := packet.Event.(type) {
	case *convevents.MessageAppendedEvent:
		r.printf("[%s] %s\n", e.Role, e.Text)
	case *convevents.ConversationResetEvent:
		r.printf("-- new conversation (%s)\n[assistant] %s\n", e.Language, e.Greeting)
	case *capevents.CaptureStartedEvent:
		r.printf("-- recording (%s), /rec to stop\n", e.Strategy)
	case *capevents.InterimTranscriptEvent:
		r.printf("   ... %s\n", strings.TrimSpace(e.Pending+" "+e.Text))
	case *pbevents.ManualPlayRequiredEvent:
		r.printf("-- playback was blocked, /retry to play the reply\n")
	case *healthevents.ConnectivityChangedEvent:
		if e.Connected {
			r.printf("-- backend online\n")
		} else {
			r.printf("-- backend offline: %s\n", e.Error)
		}
	case *core.ErrorEvent:
		r.printf("! %s: %s\n", e.Kind, e.Error)
	case *core.WarningEvent:
		r.printf("! %s\n", e.Error)
	}
}

func (r *repl) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
