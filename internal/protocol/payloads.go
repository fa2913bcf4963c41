// Package protocol payload structs for both wire directions.
package protocol

import (
	"encoding/json"
	"time"
)

// UserRef identifies a user on the wire. Username is the display nickname;
// the server always fills it from the persisted record, never from the
// request.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Credentials carries login and signup requests.
type Credentials struct {
	User     UserRef `json:"user"`
	Password string  `json:"password"`
}

// ChannelRef names a single channel in join/leave requests.
type ChannelRef struct {
	ChannelID string `json:"channel_id"`
}

// ChannelCreate carries a channel creation request.
type ChannelCreate struct {
	Name string `json:"name"`
}

// ChannelInfo is the name+id pair used everywhere a channel is listed.
type ChannelInfo struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
}

// ChannelList is the payload of channel_list and the currentChannels block
// of login_completed.
type ChannelList struct {
	Channels []ChannelInfo `json:"channels"`
}

// SendMessage carries an outbound chat message.
type SendMessage struct {
	Msg     string `json:"msg"`
	Channel string `json:"channel"`
}

// HistoryRequest asks for the last Amount messages of a channel.
type HistoryRequest struct {
	ChannelID string `json:"channel_id"`
	Amount    int    `json:"amount"`
}

// LookupRequest asks for the message window nearest at-or-before Time.
type LookupRequest struct {
	ChannelID string    `json:"channel_id"`
	Time      time.Time `json:"time"`
}

// NicknameChange carries a nickname change request.
type NicknameChange struct {
	Username string `json:"username"`
}

// EncodedFile is the relay payload for encoded file transfers: a serialized
// coding tree plus a base64 body. The codec internals are a collaborator;
// the server only validates and relays.
type EncodedFile struct {
	ChannelID string          `json:"channel_id"`
	FileName  string          `json:"file_name"`
	Tree      json.RawMessage `json:"tree"`
	Body      string          `json:"body"`
}

// LoginCompleted is the success payload of login_request.
type LoginCompleted struct {
	User            UserRef     `json:"user"`
	CurrentChannels ChannelList `json:"currentChannels"`
}

// SignupCompleted is the success payload of signup_request.
type SignupCompleted struct {
	User UserRef `json:"user"`
}

// Refusal is the generic structured negative reply: a domain code plus an
// optional human-readable reason.
type Refusal struct {
	ErrorCode int    `json:"error_code"`
	Reason    string `json:"reason,omitempty"`
}

// ChannelRefusal is a Refusal that names the channel it concerns.
type ChannelRefusal struct {
	ChannelID string `json:"channel_id"`
	ErrorCode int    `json:"error_code"`
	Reason    string `json:"reason,omitempty"`
}

// ChannelCompleted is the success payload of join/create/leave.
type ChannelCompleted struct {
	Channel ChannelInfo `json:"channel"`
}

// MessagePayload is one chat message as seen on the wire.
type MessagePayload struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	ChannelID string    `json:"channel_id"`
	Msg       string    `json:"msg"`
	Time      time.Time `json:"time"`
}

// HistoryResponse is the payload of message_history_response.
type HistoryResponse struct {
	ChannelID string           `json:"channel_id"`
	Messages  []MessagePayload `json:"messages"`
}

// LookupResult carries the message window around the matched timestamp and
// the match's 0-based position within that window.
type LookupResult struct {
	ChannelID  string           `json:"channel_id"`
	Messages   []MessagePayload `json:"messages"`
	MatchIndex int              `json:"match_index"`
}

// IncomingFile is the fan-out counterpart of EncodedFile.
type IncomingFile struct {
	Sender    string          `json:"sender"`
	ChannelID string          `json:"channel_id"`
	FileName  string          `json:"file_name"`
	Tree      json.RawMessage `json:"tree"`
	Body      string          `json:"body"`
}

// NicknameChanged is the success payload of nickname_change_request.
type NicknameChanged struct {
	Username string `json:"username"`
}

// PermissionError names the command a session-less connection attempted.
type PermissionError struct {
	ErrorCode int    `json:"error_code"`
	Command   string `json:"command"`
}

// ParsingError carries the field-path diagnostic of a malformed envelope.
type ParsingError struct {
	ErrorCode int    `json:"error_code"`
	Field     string `json:"field"`
	Reason    string `json:"reason"`
}
