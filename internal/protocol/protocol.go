// Package protocol defines the JSON command envelopes exchanged between
// client and server, the command tag catalogue, and the domain error codes.
// Decoding is strict: a malformed envelope yields a FieldError carrying the
// path of the offending field so the router can report it without touching
// any state.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Client-to-server command tags.
const (
	CmdLoginRequest          = "login_request"
	CmdSignupRequest         = "signup_request"
	CmdChannelJoinRequest    = "channel_join_request"
	CmdChannelCreateRequest  = "channel_create_request"
	CmdChannelLeaveRequest   = "channel_leave_request"
	CmdSendMessage           = "send_message"
	CmdRequestMessageHistory = "request_message_history"
	CmdLookupRequest         = "lookup_request"
	CmdOutgoingEncodedFile   = "outgoing_encoded_file"
	CmdNicknameChangeRequest = "nickname_change_request"
)

// Transport-level pseudo-commands. These normally arrive as WebSocket
// control frames and are synthesized into envelopes by the hub, but a
// client may also send them as plain envelopes.
const (
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdDisconnect = "disconnect"
)

// Server-to-client command tags.
const (
	CmdLoginCompleted         = "login_completed"
	CmdLoginRefused           = "login_refused"
	CmdSignupCompleted        = "signup_completed"
	CmdSignupRefused          = "signup_refused"
	CmdChannelList            = "channel_list"
	CmdChannelJoinCompleted   = "channel_join_completed"
	CmdChannelJoinRefused     = "channel_join_refused"
	CmdChannelCreateCompleted = "channel_create_completed"
	CmdChannelCreateRefused   = "channel_create_refused"
	CmdChannelLeaveCompleted  = "channel_leave_completed"
	CmdChannelLeaveRefused    = "channel_leave_refused"
	CmdMessageReceived        = "message_received"
	CmdMessageSendingError    = "message_sending_error"
	CmdMessageHistoryResponse = "message_history_response"
	CmdMessageHistoryError    = "message_history_error"
	CmdLookupResult           = "lookup_result"
	CmdLookupError            = "lookup_error"
	CmdIncomingEncodedFile    = "incoming_encoded_file"
	CmdFileEncodingError      = "file_encoding_error"
	CmdNicknameChangeSuccess  = "nickname_change_success"
	CmdNicknameChangeRefused  = "nickname_change_refused"
	CmdServerError            = "server_error"
)

// Domain error codes. These are small protocol-scoped integers, not HTTP
// status codes, even where the numbers coincide.
const (
	CodeInternal          = 0
	CodeParsing           = 1
	CodeMissingPermission = 2
	CodeBadPassword       = 101
	CodeUnknownUser       = 102
	CodeEmailInUse        = 103
	CodeEmptyResult       = 204
	CodeNotFound          = 404
	CodeForbidden         = 405
	CodeNotMember         = 407
	CodeRetryExhausted    = 500
)

// Envelope is the tagged union crossing the wire in both directions.
type Envelope struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// FieldError reports a decoding failure with the path of the field that
// could not be parsed or was missing.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func fieldErr(path, reason string) *FieldError {
	return &FieldError{Path: path, Reason: reason}
}

// Encode marshals a command and payload into envelope bytes.
func Encode(command string, data any) ([]byte, error) {
	env := struct {
		Command string `json:"command"`
		Data    any    `json:"data,omitempty"`
	}{Command: command, Data: data}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads built from plain structs, where a
// marshal failure indicates a programming error.
func MustEncode(command string, data any) []byte {
	raw, err := Encode(command, data)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode %s: %v", command, err))
	}
	return raw
}

// Inbound is a decoded client envelope: the command tag plus its typed
// payload (one of the request structs below, or nil for payload-free
// pseudo-commands).
type Inbound struct {
	Command string
	Payload any
}

// Decode parses raw envelope bytes into an Inbound. All failures are
// FieldErrors naming the offending path so they can be surfaced as
// parsing errors without mutating state.
func Decode(raw []byte) (*Inbound, *FieldError) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fieldErr("envelope", "malformed JSON: "+err.Error())
	}
	if env.Command == "" {
		return nil, fieldErr("command", "required")
	}

	in := &Inbound{Command: env.Command}
	switch env.Command {
	case CmdLoginRequest, CmdSignupRequest:
		var p Credentials
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.User.ID == "" {
			return nil, fieldErr("data.user.id", "required")
		}
		if p.Password == "" {
			return nil, fieldErr("data.password", "required")
		}
		in.Payload = p
	case CmdChannelJoinRequest, CmdChannelLeaveRequest:
		var p ChannelRef
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ChannelID == "" {
			return nil, fieldErr("data.channel_id", "required")
		}
		in.Payload = p
	case CmdChannelCreateRequest:
		var p ChannelCreate
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, fieldErr("data.name", "required")
		}
		in.Payload = p
	case CmdSendMessage:
		var p SendMessage
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Channel == "" {
			return nil, fieldErr("data.channel", "required")
		}
		if p.Msg == "" {
			return nil, fieldErr("data.msg", "required")
		}
		in.Payload = p
	case CmdRequestMessageHistory:
		var p HistoryRequest
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ChannelID == "" {
			return nil, fieldErr("data.channel_id", "required")
		}
		if p.Amount <= 0 {
			return nil, fieldErr("data.amount", "must be a positive integer")
		}
		in.Payload = p
	case CmdLookupRequest:
		var p LookupRequest
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ChannelID == "" {
			return nil, fieldErr("data.channel_id", "required")
		}
		if p.Time.IsZero() {
			return nil, fieldErr("data.time", "required RFC3339 timestamp")
		}
		in.Payload = p
	case CmdOutgoingEncodedFile:
		var p EncodedFile
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ChannelID == "" {
			return nil, fieldErr("data.channel_id", "required")
		}
		if p.FileName == "" {
			return nil, fieldErr("data.file_name", "required")
		}
		in.Payload = p
	case CmdNicknameChangeRequest:
		var p NicknameChange
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Username == "" {
			return nil, fieldErr("data.username", "required")
		}
		in.Payload = p
	case CmdPing, CmdPong, CmdDisconnect:
		// Payload-free pseudo-commands.
	default:
		return nil, fieldErr("command", fmt.Sprintf("unknown command %q", env.Command))
	}
	return in, nil
}

func decodeData(raw json.RawMessage, dst any) *FieldError {
	if len(raw) == 0 {
		return fieldErr("data", "required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fieldErr("data", err.Error())
	}
	return nil
}
