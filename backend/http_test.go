package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelvoice/conversation"
	"travelvoice/core"
	"travelvoice/settings"
)

func newTestClient(t *testing.T, h http.Handler, mutate ...func(*Config)) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewHTTPClient(cfg, core.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_ValidatesBaseURL(t *testing.T) {
	for _, base := range []string{"", "localhost", "://bad"} {
		cfg := DefaultConfig()
		cfg.BaseURL = base
		_, err := NewHTTPClient(cfg, nil)
		assert.Error(t, err, base)
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealth_Timeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}), func(cfg *Config) { cfg.HealthTimeout = core.Duration(20 * time.Millisecond) })

	err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChat_SendsHistoryAndLanguage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		var got map[string]interface{}
		require.NoError(t, sonic.Unmarshal(body, &got))
		assert.Equal(t, "Warszawa, 3 dni", got["text"])
		assert.Equal(t, "pl", got["language"])
		assert.Equal(t, []interface{}{
			map[string]interface{}{"role": "user", "text": "hej"},
		}, got["history"])

		w.Write([]byte(`{"response":"Świetny wybór!"}`))
	}), func(cfg *Config) { cfg.Headers = map[string]string{"X-Api-Key": "secret"} })

	resp, err := c.Chat(context.Background(), ChatRequest{
		Text:     "Warszawa, 3 dni",
		Language: settings.Polish,
		History:  []conversation.HistoryEntry{{Role: conversation.RoleUser, Text: "hej"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Świetny wybór!", resp.Response)
}

func TestChat_NilHistoryIsSentAsEmptyArray(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"history":[]`)
		w.Write([]byte(`{"response":"ok"}`))
	}))
	_, err := c.Chat(context.Background(), ChatRequest{Text: "hi", Language: settings.English})
	require.NoError(t, err)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   "boom",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusInternalServerError, se.Code)
				assert.Equal(t, "boom", se.Body)
				assert.Equal(t, "POST /chat", se.Endpoint)
			},
		},
		{
			name:   "empty reply",
			status: http.StatusOK,
			body:   `{"response":"  "}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyReply)
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"response":`,
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			_, err := c.Chat(context.Background(), ChatRequest{Text: "hi"})
			tt.check(t, err)
		})
	}
}

func TestProcessAudio_Multipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process_audio", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "en", r.FormValue("language"))
		assert.JSONEq(t, `[{"role":"assistant","text":"earlier"}]`, r.FormValue("history"))

		f, hdr, err := r.FormFile("audio")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("RIFFdata"), data)
		assert.Equal(t, "recording.wav", hdr.Filename)
		assert.Equal(t, "audio/wav", hdr.Header.Get("Content-Type"))

		w.Write([]byte(`{"user_text":"Lisbon for a weekend","response":"Here is a plan."}`))
	}))

	resp, err := c.ProcessAudio(context.Background(), AudioRequest{
		Audio:    []byte("RIFFdata"),
		MimeType: "audio/wav",
		Language: settings.English,
		History:  []conversation.HistoryEntry{{Role: conversation.RoleAssistant, Text: "earlier"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Lisbon for a weekend", resp.UserText)
	assert.Equal(t, "Here is a plan.", resp.Response)
}

func TestSynthesize_ReturnsClip(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"text":"Dzień dobry.","language":"pl","model":"edge"}`, string(body))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xff, 0xfb, 0x90})
	}))

	clip, err := c.Synthesize(context.Background(), SpeechRequest{Text: "Dzień dobry.", Language: settings.Polish, Model: settings.TTSEdge})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", clip.MimeType)
	assert.Equal(t, []byte{0xff, 0xfb, 0x90}, clip.Data)
}

func TestSynthesize_EmptyPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := c.Synthesize(context.Background(), SpeechRequest{Text: "x"})
	assert.Error(t, err)
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}), func(cfg *Config) { cfg.RequestTimeout = core.Duration(20 * time.Millisecond) })
	t.Cleanup(func() { close(release) })

	_, err := c.Chat(context.Background(), ChatRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRateLimiter_RespectsContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"ok"}`))
	}), func(cfg *Config) {
		cfg.RequestsPerSecond = 0.001
		cfg.Burst = 1
	})

	_, err := c.Chat(context.Background(), ChatRequest{Text: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Chat(ctx, ChatRequest{Text: "second"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
