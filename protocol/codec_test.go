package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Envelope(t *testing.T) {
	data, err := Marshal(MsgSendText, SendTextPayload{Text: "Kraków"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"send_text","payload":{"text":"Kraków"}}`, string(data))

	msgType, payload, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, MsgSendText, msgType)

	p, err := UnmarshalPayload[SendTextPayload](payload)
	require.NoError(t, err)
	assert.Equal(t, "Kraków", p.Text)
}

func TestMarshal_NilPayload(t *testing.T) {
	data, err := Marshal(MsgNewChat, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"new_chat"}`, string(data))

	_, payload, err := Unmarshal(data)
	require.NoError(t, err)
	p, err := UnmarshalPayload[NewChatPayload](payload)
	require.NoError(t, err)
	assert.Empty(t, p.Reason)
}

func TestUnmarshal_Errors(t *testing.T) {
	_, _, err := Unmarshal([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	_, _, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)

	_, err = UnmarshalPayload[SendTextPayload]([]byte(`{"text": 5}`))
	assert.Error(t, err)
}
