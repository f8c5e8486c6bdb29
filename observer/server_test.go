package observer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelvoice/backend"
	"travelvoice/client"
	"travelvoice/conversation"
	"travelvoice/core"
	convevents "travelvoice/events/conversation"
	"travelvoice/metrics"
	"travelvoice/settings"
)

type fakeBackend struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (f *fakeBackend) Health(context.Context) error { return nil }

func (f *fakeBackend) Chat(ctx context.Context, req backend.ChatRequest) (backend.ChatResponse, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return backend.ChatResponse{}, ctx.Err()
		}
	}
	return backend.ChatResponse{Response: "Try Lisbon in " + req.Text}, nil
}

func (f *fakeBackend) ProcessAudio(context.Context, backend.AudioRequest) (backend.AudioResponse, error) {
	return backend.AudioResponse{}, backend.ErrEmptyReply
}

func (f *fakeBackend) Synthesize(context.Context, backend.SpeechRequest) (core.AudioClip, error) {
	return core.AudioClip{}, backend.ErrUnavailable
}

type fixture struct {
	server  *httptest.Server
	obs     *Server
	client  *client.Client
	backend *fakeBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	fb := &fakeBackend{}
	c, err := client.New(client.Config{Settings: settings.Default()}, client.Options{
		Backend: fb,
		Metrics: metrics.New(reg),
	}, core.NewNopLogger())
	require.NoError(t, err)

	obs := New(Config{}, c, reg, core.NewNopLogger())
	c.AddSink(obs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	srv := httptest.NewServer(obs.Handler())
	t.Cleanup(func() {
		obs.closePeers()
		srv.Close()
		cancel()
		<-done
	})
	require.Eventually(t, func() bool { return c.Status().Connected }, time.Second, 5*time.Millisecond)
	return &fixture{server: srv, obs: obs, client: c, backend: fb}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServer_Healthz(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestServer_PostMessageAndList(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/messages", `{"text":"May"}`)
	require.Equal(t, http.StatusOK, code, body)
	var reply conversation.Message
	require.NoError(t, sonic.UnmarshalString(body, &reply))
	assert.Equal(t, conversation.RoleAssistant, reply.Role)
	assert.Equal(t, "Try Lisbon in May", reply.Text)

	code, body = f.do(t, http.MethodGet, "/messages", "")
	require.Equal(t, http.StatusOK, code)
	var msgs []conversation.Message
	require.NoError(t, sonic.UnmarshalString(body, &msgs))
	assert.Len(t, msgs, 3)
}

func TestServer_ErrorMapping(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/messages", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/recording/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, code, "no capture strategy configured")

	code, _ = f.do(t, http.MethodPost, "/playback/retry", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestServer_BusyWhileInFlight(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.backend.mu.Lock()
	f.backend.gate = gate
	f.backend.mu.Unlock()

	first := make(chan int, 1)
	go func() {
		code, _ := f.do(t, http.MethodPost, "/messages", `{"text":"June"}`)
		first <- code
	}()
	require.Eventually(t, f.client.Busy, time.Second, 5*time.Millisecond)

	code, _ := f.do(t, http.MethodPost, "/messages", `{"text":"July"}`)
	assert.Equal(t, http.StatusConflict, code)

	close(gate)
	assert.Equal(t, http.StatusOK, <-first)

	_, body := f.do(t, http.MethodGet, "/status", "")
	var st client.Status
	require.NoError(t, sonic.UnmarshalString(body, &st))
	assert.Equal(t, core.ErrorKindBusy, st.LastError)
}

func TestServer_SettingsAndProfiles(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPut, "/settings", `{"language":"xx"}`)
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, _ = f.do(t, http.MethodPost, "/settings/profile/nope", "")
	assert.Equal(t, http.StatusBadRequest, code)

	s := settings.Default()
	s.Language = settings.Polish
	data, err := sonic.MarshalString(s)
	require.NoError(t, err)
	code, body = f.do(t, http.MethodPut, "/settings", data)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, settings.Polish, f.client.Settings().Language)
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "backend_up")
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads wire events until one with id arrives.
func readUntil(t *testing.T, conn *websocket.Conn, id string) WireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var wire WireEvent
		require.NoError(t, sonic.Unmarshal(data, &wire))
		if wire.ID == id {
			return wire
		}
	}
}

func TestServer_WebSocketBroadcastsEvents(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f)
	require.Eventually(t, func() bool { return f.peers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.client.NewChat(context.Background()))
	wire := readUntil(t, conn, (&convevents.ConversationResetEvent{}).GetId())
	var reset convevents.ConversationResetEvent
	require.NoError(t, sonic.Unmarshal(wire.Payload, &reset))
	assert.Equal(t, string(settings.English), reset.Language)
	assert.NotEmpty(t, reset.Greeting)
}

func TestServer_WebSocketCommands(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"send_text","payload":{"text":"April"}}`)))
	wire := readUntil(t, conn, (&CommandResult{}).GetId())
	var result CommandResult
	require.NoError(t, sonic.Unmarshal(wire.Payload, &result))
	assert.Equal(t, CommandResult{Command: CmdSendText, OK: true}, result)
	assert.Len(t, f.client.Messages(), 3)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"dance"}`)))
	wire = readUntil(t, conn, (&CommandResult{}).GetId())
	require.NoError(t, sonic.Unmarshal(wire.Payload, &result))
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "unknown command")
}

func (f *fixture) peers() int {
	f.obs.mu.RLock()
	defer f.obs.mu.RUnlock()
	return len(f.obs.peers)
}
