// Package message implements send, history paging, nearest-time lookup,
// and the encoded-file relay against the message table.
package message

import (
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/filecodec"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/model"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

const (
	// maxIDAttempts bounds collision retries when generating message ids.
	maxIDAttempts = 3

	// lookupRadius is how many messages surround the match on each side.
	lookupRadius = 5

	noAccessReason = "You don't have access to this channel"
)

// Service owns messaging. Fan-out membership is re-resolved from the store
// and the registry at send time, never cached across a suspension point.
type Service struct {
	users    *store.Table[model.User]
	channels *store.Table[model.Channel]
	messages *store.Table[model.Message]
	hub      *hub.Hub
	codec    filecodec.Codec
	newID    func() string
}

// New creates the messaging service with uuid-based id generation.
func New(users *store.Table[model.User], channels *store.Table[model.Channel], messages *store.Table[model.Message], h *hub.Hub, codec filecodec.Codec) *Service {
	return &Service{
		users:    users,
		channels: channels,
		messages: messages,
		hub:      h,
		codec:    codec,
		newID:    uuid.NewString,
	}
}

// Send persists a message under a collision-retried id and fans it out to
// every session whose user is a member of the channel. The sender is
// necessarily a member, so its copy of message_received is the terminal
// reply.
func (s *Service) Send(c *hub.Client, userID string, p protocol.SendMessage) {
	if !s.gate(c, protocol.CmdMessageSendingError, p.Channel, userID) {
		return
	}

	msg, err := store.InsertWithRetry(s.messages, func() model.Message {
		return model.Message{
			ID:        s.newID(),
			Sender:    userID,
			ChannelID: p.Channel,
			Time:      time.Now().UTC(),
			Text:      p.Msg,
		}
	}, maxIDAttempts)
	if err != nil {
		reason := "message store unavailable"
		if errors.Is(err, store.ErrRetryExhausted) {
			reason = "could not generate a unique message id"
		}
		s.refuse(c, protocol.CmdMessageSendingError, protocol.CodeRetryExhausted, reason)
		return
	}

	payload := protocol.MustEncode(protocol.CmdMessageReceived, toWire(msg))
	s.hub.Notify(s.memberSessions(p.Channel), payload)
}

// History replies with the last Amount messages of the channel, oldest
// first. Fewer come back when the channel holds fewer.
func (s *Service) History(c *hub.Client, userID string, p protocol.HistoryRequest) {
	if !s.gate(c, protocol.CmdMessageHistoryError, p.ChannelID, userID) {
		return
	}

	msgs, err := s.channelMessages(p.ChannelID)
	if err != nil {
		s.refuse(c, protocol.CmdMessageHistoryError, protocol.CodeRetryExhausted, "message store unavailable")
		return
	}

	if len(msgs) > p.Amount {
		msgs = msgs[len(msgs)-p.Amount:]
	}

	s.hub.Reply(c, protocol.MustEncode(protocol.CmdMessageHistoryResponse, protocol.HistoryResponse{
		ChannelID: p.ChannelID,
		Messages:  toWireSlice(msgs),
	}))
}

// Lookup finds the last message with timestamp at-or-before the requested
// time (the earliest message when the time precedes them all) and replies
// with a window of up to lookupRadius messages on each side of the match,
// plus the match's position within the window.
func (s *Service) Lookup(c *hub.Client, userID string, p protocol.LookupRequest) {
	if !s.gate(c, protocol.CmdLookupError, p.ChannelID, userID) {
		return
	}

	msgs, err := s.channelMessages(p.ChannelID)
	if err != nil {
		s.refuse(c, protocol.CmdLookupError, protocol.CodeRetryExhausted, "message store unavailable")
		return
	}
	if len(msgs) == 0 {
		s.refuse(c, protocol.CmdLookupError, protocol.CodeEmptyResult, "channel has no messages")
		return
	}

	match := matchIndex(msgs, p.Time)
	start := match - lookupRadius
	if start < 0 {
		start = 0
	}
	end := match + lookupRadius + 1
	if end > len(msgs) {
		end = len(msgs)
	}

	s.hub.Reply(c, protocol.MustEncode(protocol.CmdLookupResult, protocol.LookupResult{
		ChannelID:  p.ChannelID,
		Messages:   toWireSlice(msgs[start:end]),
		MatchIndex: match - start,
	}))
}

// RelayFile validates an encoded file payload through the codec and fans it
// out to the channel's member sessions, sender included.
func (s *Service) RelayFile(c *hub.Client, userID string, p protocol.EncodedFile) {
	if !s.gate(c, protocol.CmdFileEncodingError, p.ChannelID, userID) {
		return
	}

	if err := s.codec.Validate(p.Tree, p.Body); err != nil {
		s.refuse(c, protocol.CmdFileEncodingError, protocol.CodeRetryExhausted, err.Error())
		return
	}

	payload := protocol.MustEncode(protocol.CmdIncomingEncodedFile, protocol.IncomingFile{
		Sender:    userID,
		ChannelID: p.ChannelID,
		FileName:  p.FileName,
		Tree:      p.Tree,
		Body:      p.Body,
	})
	s.hub.Notify(s.memberSessions(p.ChannelID), payload)
}

// gate performs the shared existence/membership validation: refusing with
// 404 when the channel is unknown and 405 when the resolved user does not
// belong to it. Returns true when the operation may proceed.
func (s *Service) gate(c *hub.Client, errCommand, channelID, userID string) bool {
	_, found, err := s.channels.Get(channelID)
	if err != nil || !found {
		s.refuse(c, errCommand, protocol.CodeNotFound, "Channel not found")
		return false
	}

	user, found, err := s.users.Get(userID)
	if err != nil || !found || !user.IsMember(channelID) {
		s.refuse(c, errCommand, protocol.CodeForbidden, noAccessReason)
		return false
	}
	return true
}

// channelMessages loads every message of the channel ordered ascending by
// timestamp.
func (s *Service) channelMessages(channelID string) ([]model.Message, error) {
	msgs, err := s.messages.Filter(func(m model.Message) bool {
		return m.ChannelID == channelID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Time.Before(msgs[j].Time)
	})
	return msgs, nil
}

// matchIndex binary-searches the ascending slice for the last message with
// timestamp <= t, falling back to index 0 when t precedes every message.
func matchIndex(msgs []model.Message, t time.Time) int {
	idx := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Time.After(t)
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// memberSessions resolves the sessions whose users currently belong to the
// channel.
func (s *Service) memberSessions(channelID string) []*hub.Client {
	members, err := s.users.Filter(func(u model.User) bool {
		return u.IsMember(channelID)
	})
	if err != nil {
		log.Printf("Failed to resolve members of %s: %v", channelID, err)
		return nil
	}
	ids := make(map[string]struct{}, len(members))
	for _, u := range members {
		ids[u.ID] = struct{}{}
	}
	return s.hub.SessionsWhere(func(userID string) bool {
		_, ok := ids[userID]
		return ok
	})
}

func (s *Service) refuse(c *hub.Client, command string, code int, reason string) {
	s.hub.Reply(c, protocol.MustEncode(command, protocol.Refusal{ErrorCode: code, Reason: reason}))
}

func toWire(m model.Message) protocol.MessagePayload {
	return protocol.MessagePayload{
		MessageID: m.ID,
		Sender:    m.Sender,
		ChannelID: m.ChannelID,
		Msg:       m.Text,
		Time:      m.Time,
	}
}

func toWireSlice(msgs []model.Message) []protocol.MessagePayload {
	wire := make([]protocol.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, toWire(m))
	}
	return wire
}
