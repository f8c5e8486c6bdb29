package factories

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"travelvoice/client"
	"travelvoice/controlplane"
	"travelvoice/observer"
	"travelvoice/settings"
)

// SettingsAPIConfig describes an HTTP endpoint that returns a Settings JSON
// payload, so a fleet of clients can be configured from one place.
type SettingsAPIConfig struct {
	// URL is the endpoint to request.
	URL string `json:"url" yaml:"url"`
	// Method is the HTTP method. Defaults to "POST" when Body is set, "GET" otherwise.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	// Headers are additional HTTP headers to include in the request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Body is an optional JSON body to send with the request.
	Body string `json:"body,omitempty" yaml:"body,omitempty"`
}

var settingsAPIClient = &http.Client{Timeout: 10 * time.Second}

// Fetch calls the configured endpoint and parses the response as Settings.
func (c *SettingsAPIConfig) Fetch() (Settings, error) {
	method := c.Method
	if method == "" {
		if c.Body != "" {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	req, err := http.NewRequest(method, c.URL, strings.NewReader(c.Body))
	if err != nil {
		return Settings{}, fmt.Errorf("settings api: %w", err)
	}
	if c.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := settingsAPIClient.Do(req)
	if err != nil {
		return Settings{}, fmt.Errorf("settings api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Settings{}, fmt.Errorf("settings api: unexpected status %d from %s", resp.StatusCode, c.URL)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return Settings{}, fmt.Errorf("settings api: read response: %w", err)
	}
	return SettingsFromJSON(buf.Bytes())
}

// Settings is the top-level config loaded from settings.json or
// settings.yaml.
type Settings struct {
	// Client holds the speech settings, device and timing.
	Client   client.Config         `json:"client" yaml:"client"`
	Backend  BackendFactoryConfig  `json:"backend" yaml:"backend"`
	Capture  CaptureFactoryConfig  `json:"capture" yaml:"capture"`
	Playback PlaybackFactoryConfig `json:"playback" yaml:"playback"`
	Store    StoreFactoryConfig    `json:"store" yaml:"store"`
	// Observer, when set, serves the local HTTP surface.
	Observer *observer.Config `json:"observer,omitempty" yaml:"observer,omitempty"`
	// ControlPlane, when set, links the client to a remote hub.
	ControlPlane *controlplane.ClientConfig `json:"control_plane,omitempty" yaml:"control_plane,omitempty"`
	// SettingsAPI, when set, replaces this config with the one it returns.
	SettingsAPI *SettingsAPIConfig `json:"settings_api,omitempty" yaml:"settings_api,omitempty"`
}

// DefaultSettings returns Settings pre-filled with component defaults.
func DefaultSettings() Settings {
	return Settings{
		Client:   client.Config{Settings: settings.Default()},
		Backend:  DefaultBackendFactoryConfig(),
		Capture:  DefaultCaptureFactoryConfig(),
		Playback: DefaultPlaybackFactoryConfig(),
	}
}

// SettingsFromJSON parses a JSON blob over the defaults. A backend section
// replaces the default backend entirely so that exactly one provider is set.
func SettingsFromJSON(data []byte) (Settings, error) {
	cfg := DefaultSettings()
	cfg.Backend = BackendFactoryConfig{}
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return cfg.normalize(), nil
}

// SettingsFromYAML parses a YAML document over the defaults.
func SettingsFromYAML(data []byte) (Settings, error) {
	cfg := DefaultSettings()
	cfg.Backend = BackendFactoryConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return cfg.normalize(), nil
}

// SettingsFromFile reads a settings file, choosing the format by extension.
func SettingsFromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SettingsFromYAML(data)
	default:
		return SettingsFromJSON(data)
	}
}

// SettingsFromBase64 parses base64-encoded JSON, as passed in
// SETTINGS_JSON_B64 by a process spawner.
func SettingsFromBase64(encoded string) (Settings, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return DefaultSettings(), fmt.Errorf("settings: decode base64: %w", err)
	}
	return SettingsFromJSON(data)
}

func (s Settings) normalize() Settings {
	if s.Backend == (BackendFactoryConfig{}) {
		s.Backend = DefaultBackendFactoryConfig()
	}
	return s
}

// APIKeys holds API credentials for all supported service providers.
// Pass to Settings.InjectAPIKeys after loading so that secrets are never
// stored in config files.
type APIKeys struct {
	Backend    string // Bearer token for the HTTP backend.
	OpenAI     string
	Groq       string
	Together   string
	DeepSeek   string
	OpenRouter string
	Mistral    string
	Deepgram   string // Used for the streaming recognizer.
	Redis      string // Password for the redis conversation store.
}

// APIKeysFromEnv reads credentials from the usual environment variables.
func APIKeysFromEnv() APIKeys {
	return APIKeys{
		Backend:    os.Getenv("BACKEND_API_KEY"),
		OpenAI:     os.Getenv("OPENAI_API_KEY"),
		Groq:       os.Getenv("GROQ_API_KEY"),
		Together:   os.Getenv("TOGETHER_API_KEY"),
		DeepSeek:   os.Getenv("DEEPSEEK_API_KEY"),
		OpenRouter: os.Getenv("OPENROUTER_API_KEY"),
		Mistral:    os.Getenv("MISTRAL_API_KEY"),
		Deepgram:   os.Getenv("DEEPGRAM_API_KEY"),
		Redis:      os.Getenv("REDIS_PASSWORD"),
	}
}

// InjectAPIKeys fills credentials that the config leaves empty.
func (s *Settings) InjectAPIKeys(keys APIKeys) {
	s.Backend.injectAPIKeys(keys)
	if s.Capture.Deepgram != nil && s.Capture.Deepgram.APIKey == "" {
		s.Capture.Deepgram.APIKey = keys.Deepgram
	}
	if s.Store.RedisConfig != nil && s.Store.RedisConfig.Password == "" {
		s.Store.RedisConfig.Password = keys.Redis
	}
}
