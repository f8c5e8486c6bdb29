package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"travelvoice/core"
	"travelvoice/protocol"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultReconnectDelay    = 3 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the control plane WebSocket client.
type ClientConfig struct {
	ConnectURL        string            `json:"connect_url" yaml:"connect_url"`
	ClientID          string            `json:"client_id" yaml:"client_id"`
	Version           string            `json:"version" yaml:"version"`
	Device            string            `json:"device" yaml:"device"`
	Metadata          map[string]string `json:"metadata" yaml:"metadata"`
	HeartbeatInterval core.Duration     `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	ReconnectDelay    core.Duration     `json:"reconnect_delay" yaml:"reconnect_delay"`
	Logger            *core.Logger      `json:"-" yaml:"-"`
}

// Client connects outward to a control hub. It sends status heartbeats,
// client events and session logs, and receives settings updates and
// commands. It reconnects until its context is cancelled.
type Client struct {
	config    ClientConfig
	sessionID string
	logger    *core.Logger

	// Callbacks set by the owner before Run. Commands run off the read loop.
	OnSettingsUpdate func(ctx context.Context, update protocol.SettingsUpdatePayload) error
	OnSendText       func(ctx context.Context, text string) error
	OnNewChat        func(ctx context.Context) error
	OnShutdown       func(reason string)
	StatusFunc       func() protocol.ClientStatus

	// sendCh outlives a single connection; messages queued while offline
	// are flushed after the next register.
	sendCh chan []byte

	mu        sync.Mutex
	connected bool
}

// NewClient creates a new control plane client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = core.Duration(defaultHeartbeatInterval)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = core.Duration(defaultReconnectDelay)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	sessionID := uuid.New().String()
	return &Client{
		config:    cfg,
		sessionID: sessionID,
		logger:    cfg.Logger.With(map[string]interface{}{"component": "controlplane", "session_id": sessionID}),
		sendCh:    make(chan []byte, defaultSendBufferSize),
	}
}

// SessionID identifies this run of the client on the hub.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run keeps the link up until ctx is cancelled or the hub asks for a
// shutdown. A dropped connection is retried after ReconnectDelay.
func (c *Client) Run(ctx context.Context) error {
	for {
		shutdown, err := c.serve(ctx)
		if shutdown || ctx.Err() != nil {
			return nil
		}
		c.logger.With(map[string]interface{}{"error": err}).Warn("control plane link down, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.config.ReconnectDelay.Std()):
		}
	}
}

// Publish implements core.EventSink: every client event is forwarded to the
// hub.
func (c *Client) Publish(packet *core.EventPacket) {
	data, err := sonic.Marshal(packet.Event)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "event": packet.Event.GetId()}).Debug("failed to marshal event, dropping")
		return
	}
	c.SendEvent(packet.Event.GetId(), data)
}

// SendLog sends a log entry for the session to the hub.
func (c *Client) SendLog(entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		ClientID:  c.config.ClientID,
		SessionID: c.sessionID,
		Entry:     entry,
	})
}

// SendStatus sends the client status outside the heartbeat cadence.
func (c *Client) SendStatus() {
	if c.StatusFunc == nil {
		return
	}
	c.enqueue(protocol.MsgStatus, protocol.StatusPayload{
		ClientID: c.config.ClientID,
		Status:   c.StatusFunc(),
	})
}

// SendEvent sends a client event.
func (c *Client) SendEvent(eventID string, data []byte) {
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		ClientID:  c.config.ClientID,
		SessionID: c.sessionID,
		EventID:   eventID,
		Data:      data,
	})
}

// SendLogEnd signals that the session's log stream has ended.
func (c *Client) SendLogEnd() {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		ClientID:  c.config.ClientID,
		SessionID: c.sessionID,
	})
}

// serve runs one connection. shutdown is true when the hub asked the client
// to exit.
func (c *Client) serve(ctx context.Context) (shutdown bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.logger.With(map[string]interface{}{"url": c.config.ConnectURL}).Info("connecting to control plane")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.ConnectURL, nil)
	if err != nil {
		return false, fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	defer conn.Close()

	reg := protocol.RegisterPayload{
		ClientID:  c.config.ClientID,
		SessionID: c.sessionID,
		Version:   c.config.Version,
		Device:    c.config.Device,
		Metadata:  c.config.Metadata,
		Timestamp: time.Now().UTC(),
	}
	data, err := protocol.Marshal(protocol.MsgRegister, reg)
	if err != nil {
		return false, err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false, fmt.Errorf("controlplane: send register: %w", err)
	}
	c.logger.With(map[string]interface{}{"client_id": c.config.ClientID}).Info("registered with control plane")
	c.setConnected(true)
	defer c.setConnected(false)

	// Close the socket on cancel so the blocking read returns.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	writeErr := make(chan error, 1)
	go func() {
		err := c.writeLoop(ctx, conn)
		if err != nil {
			cancel()
		}
		writeErr <- err
	}()
	go c.heartbeatLoop(ctx)

	shutdown, err = c.readLoop(ctx, conn)
	cancel()
	if werr := <-writeErr; err == nil {
		err = werr
	}
	return shutdown, err
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	select {
	case c.sendCh <- data:
	default:
		// Buffer full: drop oldest and push new.
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) (bool, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return false, errors.New("controlplane: closed by hub")
			}
			return false, fmt.Errorf("controlplane: read: %w", err)
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from control plane")
			continue
		}

		switch msgType {
		case protocol.MsgSettingsUpdate:
			p, err := protocol.UnmarshalPayload[protocol.SettingsUpdatePayload](payload)
			if err != nil {
				c.ack(msgType, err)
				continue
			}
			c.command(ctx, msgType, func(ctx context.Context) error {
				if c.OnSettingsUpdate == nil {
					return errors.New("settings updates not supported")
				}
				return c.OnSettingsUpdate(ctx, p)
			})

		case protocol.MsgSendText:
			p, err := protocol.UnmarshalPayload[protocol.SendTextPayload](payload)
			if err != nil {
				c.ack(msgType, err)
				continue
			}
			c.command(ctx, msgType, func(ctx context.Context) error {
				if c.OnSendText == nil {
					return errors.New("text messages not supported")
				}
				return c.OnSendText(ctx, p.Text)
			})

		case protocol.MsgNewChat:
			c.command(ctx, msgType, func(ctx context.Context) error {
				if c.OnNewChat == nil {
					return errors.New("new chat not supported")
				}
				return c.OnNewChat(ctx)
			})

		case protocol.MsgShutdown:
			p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
			reason := p.Reason
			if reason == "" {
				reason = "shutdown requested by control plane"
			}
			c.logger.With(map[string]interface{}{"reason": reason}).Info("shutdown requested")
			c.ack(msgType, nil)
			if c.OnShutdown != nil {
				c.OnShutdown(reason)
			}
			return true, nil

		default:
			c.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from control plane")
		}
	}
}

// command runs fn off the read loop and acknowledges the result.
func (c *Client) command(ctx context.Context, msgType protocol.MessageType, fn func(context.Context) error) {
	go func() {
		err := fn(ctx)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("control plane command failed")
		}
		c.ack(msgType, err)
		c.SendStatus()
	}()
}

func (c *Client) ack(msgType protocol.MessageType, err error) {
	p := protocol.AckPayload{AckedType: msgType, OK: err == nil}
	if err != nil {
		p.Error = err.Error()
	}
	c.enqueue(protocol.MsgAck, p)
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case data := <-c.sendCh:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("controlplane: write: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.HeartbeatInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb := protocol.HeartbeatPayload{
				ClientID:  c.config.ClientID,
				Timestamp: time.Now().UTC(),
			}
			if c.StatusFunc != nil {
				hb.Status = c.StatusFunc()
			}
			c.enqueue(protocol.MsgHeartbeat, hb)
		case <-ctx.Done():
			return
		}
	}
}
