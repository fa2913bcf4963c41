package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/protocol"
)

func TestDecodeLoginRequest(t *testing.T) {
	raw := []byte(`{"command":"login_request","data":{"user":{"id":"jane@doe.com","username":"ignored"},"password":"beebeebooboo"}}`)

	in, ferr := protocol.Decode(raw)
	require.Nil(t, ferr)
	assert.Equal(t, protocol.CmdLoginRequest, in.Command)

	creds, ok := in.Payload.(protocol.Credentials)
	require.True(t, ok)
	assert.Equal(t, "jane@doe.com", creds.User.ID)
	assert.Equal(t, "beebeebooboo", creds.Password)
}

func TestDecodeSendMessage(t *testing.T) {
	raw := []byte(`{"command":"send_message","data":{"msg":"hello","channel":"ch-1"}}`)

	in, ferr := protocol.Decode(raw)
	require.Nil(t, ferr)

	p, ok := in.Payload.(protocol.SendMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", p.Msg)
	assert.Equal(t, "ch-1", p.Channel)
}

func TestDecodeLookupRequest(t *testing.T) {
	raw := []byte(`{"command":"lookup_request","data":{"channel_id":"ch-1","time":"2026-01-02T15:04:05Z"}}`)

	in, ferr := protocol.Decode(raw)
	require.Nil(t, ferr)

	p, ok := in.Payload.(protocol.LookupRequest)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), p.Time.UTC())
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, ferr := protocol.Decode([]byte(`{"command":`))
	require.NotNil(t, ferr)
	assert.Equal(t, "envelope", ferr.Path)
}

func TestDecodeMissingField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		path string
	}{
		{"missing command", `{"data":{}}`, "command"},
		{"missing user id", `{"command":"login_request","data":{"user":{},"password":"x"}}`, "data.user.id"},
		{"missing password", `{"command":"signup_request","data":{"user":{"id":"a@b.c"}}}`, "data.password"},
		{"missing channel id", `{"command":"channel_join_request","data":{}}`, "data.channel_id"},
		{"missing name", `{"command":"channel_create_request","data":{}}`, "data.name"},
		{"non-positive amount", `{"command":"request_message_history","data":{"channel_id":"c","amount":0}}`, "data.amount"},
		{"missing data", `{"command":"send_message"}`, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ferr := protocol.Decode([]byte(tt.raw))
			require.NotNil(t, ferr)
			assert.Equal(t, tt.path, ferr.Path)
		})
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	_, ferr := protocol.Decode([]byte(`{"command":"make_coffee","data":{}}`))
	require.NotNil(t, ferr)
	assert.Equal(t, "command", ferr.Path)
	assert.Contains(t, ferr.Reason, "make_coffee")
}

func TestDecodeUnknownPayloadFieldRejected(t *testing.T) {
	raw := []byte(`{"command":"channel_join_request","data":{"channel_id":"c","bogus":true}}`)
	_, ferr := protocol.Decode(raw)
	require.NotNil(t, ferr)
	assert.Equal(t, "data", ferr.Path)
}

func TestDecodePseudoCommands(t *testing.T) {
	for _, cmd := range []string{protocol.CmdPing, protocol.CmdPong, protocol.CmdDisconnect} {
		in, ferr := protocol.Decode([]byte(`{"command":"` + cmd + `"}`))
		require.Nil(t, ferr)
		assert.Equal(t, cmd, in.Command)
		assert.Nil(t, in.Payload)
	}
}

func TestEncodeEnvelopeShape(t *testing.T) {
	raw, err := protocol.Encode(protocol.CmdChannelList, protocol.ChannelList{
		Channels: []protocol.ChannelInfo{{ChannelID: "c1", Name: "general"}},
	})
	require.NoError(t, err)

	var env struct {
		Command string `json:"command"`
		Data    struct {
			Channels []protocol.ChannelInfo `json:"channels"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, protocol.CmdChannelList, env.Command)
	require.Len(t, env.Data.Channels, 1)
	assert.Equal(t, "general", env.Data.Channels[0].Name)
}

func TestFieldErrorMessage(t *testing.T) {
	ferr := &protocol.FieldError{Path: "data.channel_id", Reason: "required"}
	assert.Equal(t, "data.channel_id: required", ferr.Error())
}
