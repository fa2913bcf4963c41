// Package channel implements join, create, and leave against the channel
// and user tables, plus the channel-list broadcast used after mutations.
package channel

import (
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/model"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

// maxIDAttempts bounds collision retries when generating channel ids.
const maxIDAttempts = 3

// Service owns channel membership mutations. Every mutation replies exactly
// once to the requester; create and leave additionally broadcast the fresh
// channel list to all sessions.
type Service struct {
	users    *store.Table[model.User]
	channels *store.Table[model.Channel]
	hub      *hub.Hub
	newID    func() string
}

// New creates the channel service with uuid-based id generation.
func New(users *store.Table[model.User], channels *store.Table[model.Channel], h *hub.Hub) *Service {
	return &Service{
		users:    users,
		channels: channels,
		hub:      h,
		newID:    uuid.NewString,
	}
}

// Join adds the channel to the user's membership list.
func (s *Service) Join(c *hub.Client, userID string, p protocol.ChannelRef) {
	ch, found, err := s.channels.Get(p.ChannelID)
	if err != nil || !found {
		s.refuseChannel(c, protocol.CmdChannelJoinRefused, p.ChannelID, protocol.CodeNotFound)
		return
	}

	user, found, err := s.users.Get(userID)
	if err != nil || !found || user.IsMember(p.ChannelID) {
		s.refuseChannel(c, protocol.CmdChannelJoinRefused, p.ChannelID, protocol.CodeForbidden)
		return
	}

	if _, err := s.users.UpdateWhere(
		func(u model.User) bool { return u.ID == userID },
		func(u *model.User) { u.Channels = append(u.Channels, p.ChannelID) },
	); err != nil {
		s.refuseChannel(c, protocol.CmdChannelJoinRefused, p.ChannelID, protocol.CodeRetryExhausted)
		return
	}

	s.hub.Reply(c, protocol.MustEncode(protocol.CmdChannelJoinCompleted, protocol.ChannelCompleted{
		Channel: protocol.ChannelInfo{ChannelID: ch.ID, Name: ch.Name},
	}))
}

// Create inserts a new channel under a freshly generated id, retrying a
// bounded number of times on key collision, then adds the creator as its
// first member and broadcasts the updated channel list to every session.
func (s *Service) Create(c *hub.Client, userID string, p protocol.ChannelCreate) {
	ch, err := store.InsertWithRetry(s.channels, func() model.Channel {
		return model.Channel{ID: s.newID(), Name: p.Name}
	}, maxIDAttempts)
	if err != nil {
		reason := "channel store unavailable"
		if errors.Is(err, store.ErrRetryExhausted) {
			reason = "could not generate a unique channel id"
		}
		s.hub.Reply(c, protocol.MustEncode(protocol.CmdChannelCreateRefused, protocol.Refusal{
			ErrorCode: protocol.CodeRetryExhausted,
			Reason:    reason,
		}))
		return
	}

	if _, err := s.users.UpdateWhere(
		func(u model.User) bool { return u.ID == userID },
		func(u *model.User) { u.Channels = append(u.Channels, ch.ID) },
	); err != nil {
		log.Printf("Failed to add %s to created channel %s: %v", userID, ch.ID, err)
	}

	s.hub.Reply(c, protocol.MustEncode(protocol.CmdChannelCreateCompleted, protocol.ChannelCompleted{
		Channel: protocol.ChannelInfo{ChannelID: ch.ID, Name: ch.Name},
	}))
	s.BroadcastChannelList()
}

// Leave removes the channel from the user's membership list and broadcasts
// the channel list to every session.
func (s *Service) Leave(c *hub.Client, userID string, p protocol.ChannelRef) {
	ch, found, err := s.channels.Get(p.ChannelID)
	if err != nil || !found {
		s.refuseChannel(c, protocol.CmdChannelLeaveRefused, p.ChannelID, protocol.CodeNotFound)
		return
	}

	user, found, err := s.users.Get(userID)
	if err != nil || !found || !user.IsMember(p.ChannelID) {
		s.refuseChannel(c, protocol.CmdChannelLeaveRefused, p.ChannelID, protocol.CodeNotMember)
		return
	}

	if _, err := s.users.UpdateWhere(
		func(u model.User) bool { return u.ID == userID },
		func(u *model.User) {
			kept := u.Channels[:0]
			for _, id := range u.Channels {
				if id != p.ChannelID {
					kept = append(kept, id)
				}
			}
			u.Channels = kept
		},
	); err != nil {
		s.refuseChannel(c, protocol.CmdChannelLeaveRefused, p.ChannelID, protocol.CodeRetryExhausted)
		return
	}

	s.hub.Reply(c, protocol.MustEncode(protocol.CmdChannelLeaveCompleted, protocol.ChannelCompleted{
		Channel: protocol.ChannelInfo{ChannelID: ch.ID, Name: ch.Name},
	}))
	s.BroadcastChannelList()
}

// SendChannelList sends one channel_list with the full channel table to a
// single connection.
func (s *Service) SendChannelList(c *hub.Client) {
	payload, err := s.channelListPayload()
	if err != nil {
		log.Printf("Failed to load channel list: %v", err)
		return
	}
	s.hub.Reply(c, payload)
}

// BroadcastChannelList sends an identical channel_list payload to every
// session in the registry. Repeated calls with no intervening mutation
// produce byte-identical payloads.
func (s *Service) BroadcastChannelList() {
	payload, err := s.channelListPayload()
	if err != nil {
		log.Printf("Failed to load channel list for broadcast: %v", err)
		return
	}
	s.hub.Notify(s.hub.Sessions(), payload)
}

func (s *Service) channelListPayload() ([]byte, error) {
	all, err := s.channels.Filter(nil)
	if err != nil {
		return nil, err
	}
	infos := make([]protocol.ChannelInfo, 0, len(all))
	for _, ch := range all {
		infos = append(infos, protocol.ChannelInfo{ChannelID: ch.ID, Name: ch.Name})
	}
	return protocol.Encode(protocol.CmdChannelList, protocol.ChannelList{Channels: infos})
}

func (s *Service) refuseChannel(c *hub.Client, command, channelID string, code int) {
	s.hub.Reply(c, protocol.MustEncode(command, protocol.ChannelRefusal{
		ChannelID: channelID,
		ErrorCode: code,
	}))
}
