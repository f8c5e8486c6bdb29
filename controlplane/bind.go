package controlplane

import (
	"context"

	"travelvoice/client"
	"travelvoice/protocol"
	"travelvoice/settings"
)

// Bind routes hub commands to c and reports c's status in heartbeats.
// shutdown is called when the hub asks the client to exit.
func Bind(cp *Client, c *client.Client, shutdown func(reason string)) {
	cp.StatusFunc = func() protocol.ClientStatus { return StatusOf(c.Status()) }
	cp.OnSettingsUpdate = func(ctx context.Context, update protocol.SettingsUpdatePayload) error {
		s, err := ApplyUpdate(c.Settings(), update)
		if err != nil {
			return err
		}
		_, err = c.ApplySettings(ctx, s)
		return err
	}
	cp.OnSendText = func(ctx context.Context, text string) error {
		_, err := c.SendText(ctx, text)
		return err
	}
	cp.OnNewChat = c.NewChat
	cp.OnShutdown = shutdown
	c.AddSink(cp)
}

// ApplyUpdate overlays a partial settings update on s. The profile, when
// named, is applied before the individual fields.
func ApplyUpdate(s settings.SpeechSettings, u protocol.SettingsUpdatePayload) (settings.SpeechSettings, error) {
	if u.Profile != "" && u.Profile != settings.ProfileCustom {
		var err error
		if s, err = s.WithProfile(u.Profile); err != nil {
			return s, err
		}
	}
	if u.Language != nil {
		s.Language = settings.Language(*u.Language)
	}
	if u.STTModel != nil {
		s.STTModel = settings.STTModel(*u.STTModel)
	}
	if u.TTSModel != nil {
		s.TTSModel = settings.TTSModel(*u.TTSModel)
	}
	if u.EnableEmotions != nil {
		s.EnableEmotions = *u.EnableEmotions
	}
	if u.EnableTTS != nil {
		s.EnableTTS = *u.EnableTTS
	}
	return s, s.Validate()
}

// StatusOf converts a client status for the wire.
func StatusOf(st client.Status) protocol.ClientStatus {
	return protocol.ClientStatus{
		Capture:     st.Capture,
		Processing:  st.Processing,
		Speaking:    st.Speaking,
		Connected:   st.Connected,
		LastError:   string(st.LastError),
		Language:    string(st.Settings.Language),
		STTModel:    string(st.Settings.STTModel),
		TTSModel:    string(st.Settings.TTSModel),
		EnableTTS:   st.Settings.EnableTTS,
		Profile:     st.Profile,
		Messages:    st.Messages,
		ManualRetry: st.ManualRetry,
	}
}
