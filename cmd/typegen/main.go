// Command typegen parses Go struct definitions and generates the TypeScript
// types of the observer's WebSocket and REST surface, so that a UI built on
// it stays in step with the client. Run from the project root:
//
//	go run ./cmd/typegen --out ui/src/types/generated.ts
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cli "github.com/spf13/pflag"
)

// typeMapping maps Go type strings to TypeScript type strings.
var typeMapping = map[string]string{
	"string":                 "string",
	"int":                    "number",
	"int64":                  "number",
	"float32":                "number",
	"float64":                "number",
	"bool":                   "boolean",
	"any":                    "unknown",
	"interface{}":            "unknown",
	"json.RawMessage":        "unknown",
	"time.Time":              "string",
	"core.Duration":          "string",
	"Duration":               "string",
	"[]byte":                 "string",
	"map[string]string":      "Record<string, string>",
	"map[string]interface{}": "Record<string, unknown>",
}

// structsToGenerate lists the Go structs to emit, in output order. A
// "dir:Name" entry picks the struct from one package when names collide.
var structsToGenerate = []string{
	// Settings and status
	"SpeechSettings",
	"Capabilities",
	"client:Status",
	"conversation:Message",
	"observer:WireEvent",
	"observer:CommandResult",
	"observer:commandPayload",
	// Events
	"CaptureStartedEvent",
	"InterimTranscriptEvent",
	"UtteranceEvent",
	"AudioUtteranceEvent",
	"CaptureStoppedEvent",
	"CaptureFailedEvent",
	"MessageAppendedEvent",
	"ConversationResetEvent",
	"SettingsChangedEvent",
	"DispatchStartedEvent",
	"ReplyEvent",
	"DispatchFailedEvent",
	"SpeakingStartedEvent",
	"SpeakingEndedEvent",
	"SegmentFailedEvent",
	"ManualPlayRequiredEvent",
	"ConnectivityChangedEvent",
	"core:ErrorEvent",
	"core:WarningEvent",
	// Control plane
	"protocol:ClientStatus",
	"protocol:SettingsUpdatePayload",
}

// tsRenames maps Go struct names to preferred TypeScript interface names.
var tsRenames = map[string]string{
	"client:Status":           "ClientStatus",
	"conversation:Message":    "ChatMessage",
	"observer:commandPayload": "CommandPayload",
	"protocol:ClientStatus":   "HubClientStatus",
}

func main() {
	outPath := cli.StringP("out", "o", "ui/src/types/generated.ts", "output TypeScript file path")
	cli.Parse()

	root, err := os.Getwd()
	if err != nil {
		fatal("getwd: %v", err)
	}
	m, err := loadTree(root)
	if err != nil {
		fatal("%v", err)
	}

	out := generate(m)
	absOut := *outPath
	if !filepath.IsAbs(absOut) {
		absOut = filepath.Join(root, absOut)
	}
	if err := os.MkdirAll(filepath.Dir(absOut), 0o755); err != nil {
		fatal("mkdir: %v", err)
	}
	if err := os.WriteFile(absOut, out, 0o644); err != nil {
		fatal("write: %v", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", absOut, len(out))
}

func loadTree(root string) (*model, error) {
	dirs, err := discoverGoDirs(root)
	if err != nil {
		return nil, fmt.Errorf("discover dirs: %w", err)
	}
	m := newModel()
	for _, dir := range dirs {
		rel, _ := filepath.Rel(root, dir)
		if err := m.load(dir, rel); err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", dir, err)
		}
	}
	return m, nil
}

// tsName is the interface name emitted for a structsToGenerate entry.
func tsName(goName string) string {
	if rename, ok := tsRenames[goName]; ok {
		return rename
	}
	if idx := strings.LastIndex(goName, ":"); idx >= 0 {
		return goName[idx+1:]
	}
	return goName
}

// lookup finds a struct by plain or "dir:Name" key; the dir part matches the
// last path element.
func (m *model) lookup(goName string) *structInfo {
	if si, ok := m.structs[goName]; ok {
		return si
	}
	dir, name, ok := strings.Cut(goName, ":")
	if !ok {
		return nil
	}
	for key, si := range m.structs {
		kdir, kname, ok := strings.Cut(key, ":")
		if ok && kname == name && filepath.Base(kdir) == dir {
			return si
		}
	}
	return nil
}

func generate(m *model) []byte {
	refs := map[string]string{}
	for _, goName := range structsToGenerate {
		plain := goName
		if idx := strings.LastIndex(goName, ":"); idx >= 0 {
			plain = goName[idx+1:]
		}
		if _, taken := refs[plain]; !taken {
			refs[plain] = tsName(goName)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("// Code generated by cmd/typegen; DO NOT EDIT.\n")
	buf.WriteString("//\n")
	buf.WriteString("// Regenerate: go run ./cmd/typegen --out ui/src/types/generated.ts\n\n")

	var events []string
	for _, goName := range structsToGenerate {
		si := m.lookup(goName)
		if si == nil {
			fmt.Fprintf(os.Stderr, "warning: struct %q not found, skipping\n", goName)
			continue
		}
		name := tsName(goName)
		writeInterface(&buf, name, si, m, refs)
		if id, ok := m.eventIDs[si.name]; ok {
			events = append(events, fmt.Sprintf("  '%s': %s", id, name))
		}
	}

	sort.Strings(events)
	buf.WriteString("/** Event payloads keyed by WireEvent.id */\n")
	buf.WriteString("export interface EventMap {\n")
	for _, e := range events {
		buf.WriteString(e + "\n")
	}
	buf.WriteString("}\n\n")
	buf.WriteString("export type EventId = keyof EventMap\n")
	return buf.Bytes()
}

// resolveType converts a Go type string to a TypeScript type string.
func resolveType(goType string, m *model, refs map[string]string) string {
	clean := strings.TrimPrefix(goType, "*")
	if ts, ok := typeMapping[clean]; ok {
		return ts
	}
	if strings.HasPrefix(clean, "[]") {
		return resolveType(clean[2:], m, refs) + "[]"
	}
	if strings.HasPrefix(clean, "map[") {
		return "Record<string, unknown>"
	}
	short := clean
	if idx := strings.LastIndex(clean, "."); idx >= 0 {
		short = clean[idx+1:]
	}
	if ref, ok := refs[short]; ok {
		return ref
	}
	if vals, ok := m.enums[short]; ok && len(vals) > 0 {
		return unionLiteral(vals)
	}
	if underlying, ok := m.aliases[short]; ok {
		return resolveType(underlying, m, refs)
	}
	return "unknown"
}

// unionLiteral returns a TS inline union type from string values.
func unionLiteral(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, " | ")
}

// writeInterface writes a single TypeScript interface. Only omitempty and
// pointer fields are optional since the client always sends the rest.
func writeInterface(buf *bytes.Buffer, name string, si *structInfo, m *model, refs map[string]string) {
	fmt.Fprintf(buf, "/** Generated from Go struct: %s */\n", si.name)
	fmt.Fprintf(buf, "export interface %s {\n", name)
	for _, f := range si.fields {
		opt := ""
		if f.optional {
			opt = "?"
		}
		fmt.Fprintf(buf, "  %s%s: %s\n", f.jsonName, opt, resolveType(f.goType, m, refs))
	}
	buf.WriteString("}\n\n")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "typegen: "+format+"\n", args...)
	os.Exit(1)
}
