// Package observer serves a local HTTP surface for a running client: a
// WebSocket that broadcasts client events and accepts commands, a small
// REST API, Prometheus metrics and a liveness probe.
package observer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"travelvoice/backend"
	"travelvoice/capture"
	"travelvoice/client"
	"travelvoice/core"
	"travelvoice/dispatch"
	"travelvoice/settings"
)

// Config holds configuration for Server.
type Config struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	// CommandsPerMinute limits state-changing requests per remote address.
	CommandsPerMinute int `json:"commands_per_minute" yaml:"commands_per_minute"`
}

func DefaultConfig() Config {
	return Config{
		Addr:              "127.0.0.1:19304",
		AllowedOrigins:    []string{"*"},
		CommandsPerMinute: 120,
	}
}

// Server implements core.EventSink; register it with client.AddSink.
type Server struct {
	config   Config
	client   *client.Client
	gatherer prometheus.Gatherer
	logger   *core.Logger
	router   chi.Router
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

// New builds the server around c. gatherer may be nil to disable /metrics.
func New(config Config, c *client.Client, gatherer prometheus.Gatherer, logger *core.Logger) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = def.AllowedOrigins
	}
	if config.CommandsPerMinute <= 0 {
		config.CommandsPerMinute = def.CommandsPerMinute
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	s := &Server{
		config:   config,
		client:   c,
		gatherer: gatherer,
		logger:   logger.With(map[string]interface{}{"component": "observer"}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		peers:    make(map[*peer]struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/ws", s.handleWS)
	r.Get("/status", s.getStatus)
	r.Get("/messages", s.getMessages)

	r.Group(func(cr chi.Router) {
		cr.Use(httprate.LimitByIP(s.config.CommandsPerMinute, time.Minute))
		cr.Post("/messages", s.postMessage)
		cr.Post("/recording/start", s.startRecording)
		cr.Post("/recording/stop", s.stopRecording)
		cr.Post("/chat/new", s.newChat)
		cr.Post("/playback/retry", s.retryPlayback)
		cr.Post("/playback/stop", s.stopPlayback)
		cr.Put("/settings", s.putSettings)
		cr.Post("/settings/profile/{name}", s.applyProfile)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.config.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.closePeers()
	}()

	s.logger.Info("observer listening", "addr", s.config.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type sendTextRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Status())
}

func (s *Server) getMessages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.client.Messages())
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := s.client.SendText(r.Context(), req.Text)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.client.StartRecording(r.Context()))
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.client.StopRecording(r.Context()))
}

func (s *Server) newChat(w http.ResponseWriter, r *http.Request) {
	s.command(w, s.client.NewChat(r.Context()))
}

func (s *Server) retryPlayback(w http.ResponseWriter, r *http.Request) {
	if !s.client.RetryPlayback(r.Context()) {
		writeError(w, http.StatusConflict, errors.New("no blocked reply to retry"))
		return
	}
	s.command(w, nil)
}

func (s *Server) stopPlayback(w http.ResponseWriter, _ *http.Request) {
	s.client.StopPlayback()
	s.command(w, nil)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.SpeechSettings
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	applied, err := s.client.ApplySettings(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) applyProfile(w http.ResponseWriter, r *http.Request) {
	applied, err := s.client.ApplyProfile(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) command(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.client.Status())
}

// statusFor maps client errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrInFlight), errors.Is(err, capture.ErrSessionActive), errors.Is(err, capture.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, client.ErrNoCapture):
		return http.StatusServiceUnavailable
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway
	default:
		var se *backend.StatusError
		if errors.As(err, &se) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func readJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("empty request body")
	}
	return sonic.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
