// Command travelvoice is a terminal voice client for the travel planning
// assistant. Type a message to chat, or use the slash commands to record,
// switch language and control playback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"travelvoice/controlplane"
	"travelvoice/core"
	"travelvoice/factories"
	"travelvoice/observer"
	"travelvoice/settings"
)

func main() {
	envFile := cli.StringP("env", "e", ".env.local", "Env file path")
	settingsPath := cli.StringP("settings", "s", getEnv("SETTINGS_PATH", "./settings.json"), "Settings file (.json, .yaml or .yml)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	logFormat := cli.String("log-format", "console", "Log format: console or json")
	logDir := cli.String("log-dir", getEnv("LOG_DIR", ""), "Directory for per-session JSONL logs")
	language := cli.String("lang", "", "Conversation language (pl or en)")
	device := cli.String("device", "", "Device class (desktop or mobile)")
	observe := cli.String("observe", "", "Serve the local observer on this address")
	connect := cli.String("connect", "", "WebSocket URL of a control hub")
	noREPL := cli.Bool("no-repl", false, "Run without the interactive prompt")
	cli.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
	}

	base := newLogger(*logFormat, *logLevel)
	core.SetLogger(*base)
	defer base.Sync()

	s := loadSettings(*settingsPath, base)
	if *language != "" {
		s.Client.Settings.Language = settings.Language(*language)
	}
	if *device != "" {
		s.Client.Device = settings.Device(*device)
	}
	if *observe != "" {
		if s.Observer == nil {
			cfg := observer.DefaultConfig()
			s.Observer = &cfg
		}
		s.Observer.Addr = *observe
	}
	if *connect != "" {
		if s.ControlPlane == nil {
			s.ControlPlane = &controlplane.ClientConfig{}
		}
		s.ControlPlane.ConnectURL = *connect
		if s.ControlPlane.ClientID == "" {
			s.ControlPlane.ClientID = os.Getenv("CLIENT_ID")
		}
	}

	logger := base
	if *logDir != "" {
		writer, err := core.NewSessionLogWriter(*logDir, core.SessionMetadata{
			SessionID: uuid.New().String(),
			Language:  string(s.Client.Settings.Language),
			Device:    string(s.Client.Device),
		})
		if err != nil {
			base.With(map[string]interface{}{"error": err}).Warn("session log disabled")
		} else {
			defer writer.Close()
			logger = core.NewSessionLogger(base, writer)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := factories.Build(ctx, s, factories.APIKeysFromEnv(), logger)
	if err != nil {
		logger.With(map[string]interface{}{"error": err}).Error("failed to build client")
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	if !*noREPL {
		r := newREPL(app.Client, os.Stdin, os.Stdout)
		app.Client.AddSink(r)
		go func() {
			r.Run(ctx)
			cancel()
		}()
	}

	if err := <-done; err != nil {
		logger.With(map[string]interface{}{"error": err}).Error("client stopped with error")
		app.Close()
		os.Exit(1)
	}
}

func loadSettings(path string, logger *core.Logger) factories.Settings {
	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		s, err := factories.SettingsFromBase64(b64)
		if err != nil {
			logger.With(map[string]interface{}{"error": err}).Error("failed to parse SETTINGS_JSON_B64, using defaults")
			return factories.DefaultSettings()
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
		return s
	}
	s, err := factories.SettingsFromFile(path)
	if err != nil {
		logger.With(map[string]interface{}{"path": path, "error": err}).Warn("failed to load settings, using defaults")
		return factories.DefaultSettings()
	}
	return s
}

func newLogger(format, level string) *core.Logger {
	lvl := core.ParseLevel(level)
	if format == "json" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(lvl / 4))
		zl, err := cfg.Build()
		if err == nil {
			return core.NewZapLogger(zl)
		}
		fmt.Fprintf(os.Stderr, "zap logger unavailable, falling back to console: %v\n", err)
	}
	return core.NewSlogLogger(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
