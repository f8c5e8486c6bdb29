package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"travelvoice/conversation"
	"travelvoice/core"
)

const maxErrorBody = 512

// Config configures HTTPClient.
type Config struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	// RequestTimeout bounds every chat, audio and synthesis request.
	RequestTimeout core.Duration `json:"request_timeout" yaml:"request_timeout"`
	// HealthTimeout bounds the health probe.
	HealthTimeout core.Duration `json:"health_timeout" yaml:"health_timeout"`
	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`
	// Headers are added to every request, e.g. an API key.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000",
		RequestTimeout: core.Duration(30 * time.Second),
		HealthTimeout:  core.Duration(5 * time.Second),
	}
}

// HTTPClient implements Backend over the server's HTTP endpoints.
type HTTPClient struct {
	config  Config
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *core.Logger
}

// NewHTTPClient validates the base URL and fills zero-valued timeouts.
func NewHTTPClient(config Config, logger *core.Logger) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, errors.New("backend: base_url is required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base_url %q", config.BaseURL)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = DefaultConfig().HealthTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &HTTPClient{
		config:  config,
		baseURL: base,
		http:    &http.Client{},
		limiter: limiter,
		logger:  logger.With(map[string]interface{}{"component": "backend", "base_url": base.String()}),
	}, nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return fmt.Errorf("backend: GET /health: %w", err)
	}
	_, _, err = c.do(req, "GET /health")
	return err
}

func (c *HTTPClient) Chat(ctx context.Context, r ChatRequest) (ChatResponse, error) {
	if r.History == nil {
		r.History = []conversation.HistoryEntry{}
	}
	body, err := sonic.Marshal(r)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("backend: marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/chat"), bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("backend: POST /chat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, _, err := c.do(req, "POST /chat")
	if err != nil {
		return ChatResponse{}, err
	}
	var resp ChatResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return ChatResponse{}, fmt.Errorf("backend: decode chat response: %w", err)
	}
	if strings.TrimSpace(resp.Response) == "" {
		return ChatResponse{}, ErrEmptyReply
	}
	return resp, nil
}

func (c *HTTPClient) ProcessAudio(ctx context.Context, r AudioRequest) (AudioResponse, error) {
	history := r.History
	if history == nil {
		history = []conversation.HistoryEntry{}
	}
	historyJSON, err := sonic.MarshalString(history)
	if err != nil {
		return AudioResponse{}, fmt.Errorf("backend: marshal history: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	mimeType := r.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="`+audioFileName(mimeType)+`"`)
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return AudioResponse{}, fmt.Errorf("backend: build audio form: %w", err)
	}
	if _, err := part.Write(r.Audio); err != nil {
		return AudioResponse{}, fmt.Errorf("backend: build audio form: %w", err)
	}
	if err := form.WriteField("language", string(r.Language)); err != nil {
		return AudioResponse{}, fmt.Errorf("backend: build audio form: %w", err)
	}
	if err := form.WriteField("history", historyJSON); err != nil {
		return AudioResponse{}, fmt.Errorf("backend: build audio form: %w", err)
	}
	if err := form.Close(); err != nil {
		return AudioResponse{}, fmt.Errorf("backend: build audio form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/process_audio"), &body)
	if err != nil {
		return AudioResponse{}, fmt.Errorf("backend: POST /process_audio: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	data, _, err := c.do(req, "POST /process_audio")
	if err != nil {
		return AudioResponse{}, err
	}
	var resp AudioResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return AudioResponse{}, fmt.Errorf("backend: decode audio response: %w", err)
	}
	if strings.TrimSpace(resp.Response) == "" {
		return AudioResponse{}, ErrEmptyReply
	}
	return resp, nil
}

func (c *HTTPClient) Synthesize(ctx context.Context, r SpeechRequest) (core.AudioClip, error) {
	body, err := sonic.Marshal(r)
	if err != nil {
		return core.AudioClip{}, fmt.Errorf("backend: marshal tts request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/tts"), bytes.NewReader(body))
	if err != nil {
		return core.AudioClip{}, fmt.Errorf("backend: POST /tts: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	data, contentType, err := c.do(req, "POST /tts")
	if err != nil {
		return core.AudioClip{}, err
	}
	if len(data) == 0 {
		return core.AudioClip{}, fmt.Errorf("backend: POST /tts: empty audio payload")
	}
	return core.AudioClip{Data: data, MimeType: contentType}, nil
}

func (c *HTTPClient) endpoint(path string) string {
	return c.baseURL.String() + path
}

// do paces, sends and reads a request. Non-2xx responses become StatusError;
// transport failures and timeouts wrap ErrUnavailable.
func (c *HTTPClient) do(req *http.Request, name string) ([]byte, string, error) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, "", fmt.Errorf("backend: %s: %w: %w", name, ErrUnavailable, err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("backend: %s: %w: %w", name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &StatusError{Endpoint: name, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("backend: %s: read response: %w: %w", name, ErrUnavailable, err)
	}
	c.logger.Debug("backend request completed", "endpoint", name, "status", resp.StatusCode, "bytes", len(data), "elapsed", time.Since(start))
	return data, resp.Header.Get("Content-Type"), nil
}

func audioFileName(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return "recording.wav"
	case strings.Contains(mimeType, "webm"):
		return "recording.webm"
	case strings.Contains(mimeType, "ogg"):
		return "recording.ogg"
	default:
		return "recording.bin"
	}
}
