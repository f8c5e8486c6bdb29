package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGenerate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "settings", "settings.go"), `package settings

type Language string

const (
	Polish  Language = "pl"
	English Language = "en"
)

type SpeechSettings struct {
	Language  Language `+"`json:\"language\"`"+`
	EnableTTS bool     `+"`json:\"enable_tts\"`"+`
}
`)
	writeFile(t, filepath.Join(root, "client", "client.go"), `package client

import "example/settings"

type Status struct {
	Capture  string                  `+"`json:\"capture\"`"+`
	Settings settings.SpeechSettings `+"`json:\"settings\"`"+`
	Strategy string                  `+"`json:\"strategy,omitempty\"`"+`
}
`)
	writeFile(t, filepath.Join(root, "events", "capture", "output.go"), `package capture

type CaptureStartedEvent struct {
	SessionID string `+"`json:\"session_id\"`"+`
	Secret    string `+"`json:\"api_key\"`"+`
}

func (e *CaptureStartedEvent) GetId() string {
	return "capture.started"
}
`)
	writeFile(t, filepath.Join(root, "events", "capture", "output_test.go"), `package capture

type Ignored struct{}
`)

	m, err := loadTree(root)
	require.NoError(t, err)
	assert.Equal(t, "capture.started", m.eventIDs["CaptureStartedEvent"])
	assert.NotContains(t, m.structs, "Ignored")

	out := string(generate(m))
	assert.Contains(t, out, "export interface SpeechSettings {\n  language: 'pl' | 'en'\n  enable_tts: boolean\n}")
	assert.Contains(t, out, "export interface ClientStatus {\n  capture: string\n  settings: SpeechSettings\n  strategy?: string\n}")
	assert.Contains(t, out, "export interface CaptureStartedEvent {\n  session_id: string\n}")
	assert.NotContains(t, out, "api_key")
	assert.Contains(t, out, "  'capture.started': CaptureStartedEvent\n")
	assert.Contains(t, out, "export type EventId = keyof EventMap")
}

func TestResolveType(t *testing.T) {
	m := newModel()
	m.aliases["Device"] = "string"
	refs := map[string]string{"Message": "ChatMessage"}

	cases := map[string]string{
		"*int":                   "number",
		"[]string":               "string[]",
		"[]conversation.Message": "ChatMessage[]",
		"time.Time":              "string",
		"core.Duration":          "string",
		"settings.Device":        "string",
		"map[string]int":         "Record<string, unknown>",
		"chan int":               "unknown",
	}
	for goType, want := range cases {
		assert.Equal(t, want, resolveType(goType, m, refs), goType)
	}
}
