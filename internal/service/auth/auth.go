// Package auth implements signup, login, session bootstrap, liveness
// touches, and nickname changes against the user table.
package auth

import (
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/model"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

// DefaultHorizon is how far a liveness touch pushes out the account's
// self-destruct timestamp. The cleanup job consuming it is external.
const DefaultHorizon = 30 * 24 * time.Hour

// Service owns authentication and the session bootstrap sequence.
type Service struct {
	users    *store.Table[model.User]
	channels *store.Table[model.Channel]
	hub      *hub.Hub
	horizon  time.Duration
	hashCost int
}

// New creates the auth service. The channel table is only read, to resolve
// membership ids into name+id pairs for the login reply.
func New(users *store.Table[model.User], channels *store.Table[model.Channel], h *hub.Hub, horizon time.Duration) *Service {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Service{
		users:    users,
		channels: channels,
		hub:      h,
		horizon:  horizon,
		hashCost: bcrypt.DefaultCost,
	}
}

// Signup creates an account and bootstraps a session for it. The second
// half of the sequence is a plain Login with the same credentials, so the
// client sees signup_completed followed by login_completed and
// channel_list, never a second signup reply.
func (s *Service) Signup(c *hub.Client, creds protocol.Credentials) {
	_, exists, err := s.users.Get(creds.User.ID)
	if err != nil {
		s.refuse(c, protocol.CmdSignupRefused, protocol.CodeRetryExhausted, "account store unavailable")
		return
	}
	if exists {
		s.refuse(c, protocol.CmdSignupRefused, protocol.CodeEmailInUse, "email already in use")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.hashCost)
	if err != nil {
		s.refuse(c, protocol.CmdSignupRefused, protocol.CodeRetryExhausted, "could not hash password")
		return
	}

	nickname := creds.User.Username
	if nickname == "" {
		nickname = creds.User.ID
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           creds.User.ID,
		Nickname:     nickname,
		PasswordHash: string(hash),
		Channels:     []string{},
		Friends:      []string{},
		LastSeen:     now,
		SelfDestruct: now.Add(s.horizon),
	}
	if err := s.users.Insert(user); err != nil {
		// A concurrent signup for the same id may have won the race.
		s.refuse(c, protocol.CmdSignupRefused, protocol.CodeEmailInUse, "email already in use")
		return
	}

	s.hub.Reply(c, protocol.MustEncode(protocol.CmdSignupCompleted, protocol.SignupCompleted{
		User: protocol.UserRef{ID: user.ID, Username: user.Nickname},
	}))

	s.Login(c, creds)
}

// Login authenticates the credentials, binds the session, and replies with
// login_completed followed by a channel_list carrying the same membership
// data. The nickname in the request is ignored; the persisted one wins.
func (s *Service) Login(c *hub.Client, creds protocol.Credentials) {
	user, exists, err := s.users.Get(creds.User.ID)
	if err != nil {
		s.refuse(c, protocol.CmdLoginRefused, protocol.CodeRetryExhausted, "account store unavailable")
		return
	}
	if !exists {
		s.refuse(c, protocol.CmdLoginRefused, protocol.CodeUnknownUser, "unknown user")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		s.refuse(c, protocol.CmdLoginRefused, protocol.CodeBadPassword, "bad password")
		return
	}

	s.hub.Bind(c, user.ID)
	if err := s.Touch(user.ID); err != nil {
		log.Printf("Failed to touch %s at login: %v", user.ID, err)
	}

	memberships, err := s.memberships(user)
	if err != nil {
		log.Printf("Failed to load memberships for %s: %v", user.ID, err)
		memberships = []protocol.ChannelInfo{}
	}

	channels := protocol.ChannelList{Channels: memberships}
	s.hub.Reply(c, protocol.MustEncode(protocol.CmdLoginCompleted, protocol.LoginCompleted{
		User:            protocol.UserRef{ID: user.ID, Username: user.Nickname},
		CurrentChannels: channels,
	}))
	s.hub.Reply(c, protocol.MustEncode(protocol.CmdChannelList, channels))
}

// Touch refreshes the liveness bookkeeping of a user: last-seen moves to
// now, self-destruct moves out by the horizon, and any pending destroy
// warning is cleared. Called on login, pong, and disconnect.
func (s *Service) Touch(userID string) error {
	now := time.Now().UTC()
	_, err := s.users.UpdateWhere(
		func(u model.User) bool { return u.ID == userID },
		func(u *model.User) {
			u.LastSeen = now
			u.SelfDestruct = now.Add(s.horizon)
			u.DestroyWarning = false
		},
	)
	return err
}

// ChangeNickname updates the persisted display name of the resolved user.
func (s *Service) ChangeNickname(c *hub.Client, userID string, p protocol.NicknameChange) {
	count, err := s.users.UpdateWhere(
		func(u model.User) bool { return u.ID == userID },
		func(u *model.User) { u.Nickname = p.Username },
	)
	if err != nil {
		s.refuse(c, protocol.CmdNicknameChangeRefused, protocol.CodeRetryExhausted, "account store unavailable")
		return
	}
	if count == 0 {
		s.refuse(c, protocol.CmdNicknameChangeRefused, protocol.CodeNotFound, "unknown user")
		return
	}
	s.hub.Reply(c, protocol.MustEncode(protocol.CmdNicknameChangeSuccess, protocol.NicknameChanged{
		Username: p.Username,
	}))
}

// memberships resolves the user's channel ids into name+id pairs.
func (s *Service) memberships(user model.User) ([]protocol.ChannelInfo, error) {
	matches, err := s.channels.Filter(func(ch model.Channel) bool {
		return user.IsMember(ch.ID)
	})
	if err != nil {
		return nil, err
	}
	infos := make([]protocol.ChannelInfo, 0, len(matches))
	for _, ch := range matches {
		infos = append(infos, protocol.ChannelInfo{ChannelID: ch.ID, Name: ch.Name})
	}
	return infos, nil
}

func (s *Service) refuse(c *hub.Client, command string, code int, reason string) {
	s.hub.Reply(c, protocol.MustEncode(command, protocol.Refusal{ErrorCode: code, Reason: reason}))
}
