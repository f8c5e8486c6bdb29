package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"travelvoice/core"
	"travelvoice/settings"
)

const (
	peerBufferSize = 64
	writeTimeout   = 10 * time.Second
)

// WireEvent is the JSON envelope used on the WebSocket connection in both
// directions.
//
//	{"id": "<event or command id>", "payload": { /* fields */ }}
type WireEvent struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command ids accepted on the WebSocket.
const (
	CmdSendText       = "send_text"
	CmdStartRecording = "start_recording"
	CmdStopRecording  = "stop_recording"
	CmdNewChat        = "new_chat"
	CmdSetLanguage    = "set_language"
	CmdSetTTS         = "set_tts"
	CmdRetryPlayback  = "retry_playback"
	CmdUserGesture    = "user_gesture"
)

// CommandResult is sent back to the peer that issued a command.
type CommandResult struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func (e *CommandResult) GetId() string {
	return "observer.command_result"
}

type commandPayload struct {
	Text     string            `json:"text"`
	Language settings.Language `json:"language"`
	Enabled  bool              `json:"enabled"`
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
}

// Publish broadcasts the event to every connected peer. Slow peers drop
// events rather than stalling the client.
func (s *Server) Publish(packet *core.EventPacket) {
	data, err := encodeEvent(packet.Event)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err, "event": packet.Event.GetId()}).Debug("failed to marshal event")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := range s.peers {
		select {
		case p.send <- data:
		default:
		}
	}
}

func encodeEvent(event core.IEvent) ([]byte, error) {
	payload, err := sonic.Marshal(event)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(WireEvent{ID: event.GetId(), Payload: payload})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("websocket upgrade failed")
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, peerBufferSize)}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("observer connected", "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go s.writePump(p, done)
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		close(done)
		conn.Close()
	}()

	ctx := context.WithoutCancel(r.Context())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var wire WireEvent
		if err := sonic.Unmarshal(data, &wire); err != nil {
			s.reply(p, &CommandResult{Error: "invalid message: " + err.Error()})
			continue
		}
		go func() {
			err := s.execute(ctx, wire)
			result := &CommandResult{Command: wire.ID, OK: err == nil}
			if err != nil {
				result.Error = err.Error()
			}
			s.reply(p, result)
		}()
	}
}

func (s *Server) execute(ctx context.Context, wire WireEvent) error {
	var p commandPayload
	if len(wire.Payload) > 0 {
		if err := sonic.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("invalid payload for %q: %w", wire.ID, err)
		}
	}
	switch wire.ID {
	case CmdSendText:
		_, err := s.client.SendText(ctx, p.Text)
		return err
	case CmdStartRecording:
		return s.client.StartRecording(ctx)
	case CmdStopRecording:
		return s.client.StopRecording(ctx)
	case CmdNewChat:
		return s.client.NewChat(ctx)
	case CmdSetLanguage:
		_, err := s.client.SetLanguage(ctx, p.Language)
		return err
	case CmdSetTTS:
		_, err := s.client.SetTTSEnabled(ctx, p.Enabled)
		return err
	case CmdRetryPlayback:
		if !s.client.RetryPlayback(ctx) {
			return fmt.Errorf("no blocked reply to retry")
		}
		return nil
	case CmdUserGesture:
		s.client.UserGesture(ctx)
		return nil
	default:
		return fmt.Errorf("unknown command %q", wire.ID)
	}
}

func (s *Server) reply(p *peer, result *CommandResult) {
	data, err := encodeEvent(result)
	if err != nil {
		return
	}
	select {
	case p.send <- data:
	default:
	}
}

func (s *Server) writePump(p *peer, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.With(map[string]interface{}{"error": err}).Debug("write to observer failed")
				p.conn.Close()
				return
			}
		}
	}
}

func (s *Server) closePeers() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := range s.peers {
		p.conn.Close()
	}
}
