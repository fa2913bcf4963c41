// Package router decodes inbound envelopes, enforces the permission gate,
// and dispatches commands to the matched domain service. It also owns the
// connection-boundary recovery that turns unexpected handler failures into
// a server_error sent only to the offending connection.
package router

import (
	"fmt"
	"log"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/service/auth"
	"github.com/parleychat/parley/internal/service/channel"
	"github.com/parleychat/parley/internal/service/message"
)

// Router is the single entry point from transport to domain logic.
type Router struct {
	hub      *hub.Hub
	auth     *auth.Service
	channels *channel.Service
	messages *message.Service
}

// New wires the router into the hub's transport callbacks and returns it.
func New(h *hub.Hub, authSvc *auth.Service, channelSvc *channel.Service, messageSvc *message.Service) *Router {
	r := &Router{
		hub:      h,
		auth:     authSvc,
		channels: channelSvc,
		messages: messageSvc,
	}
	h.SetHandlers(r.HandleMessage, r.HandlePong, r.HandleHangup)
	return r
}

// HandleMessage processes one raw inbound envelope from a connection.
// Exactly one terminal reply goes back to the requester for every decoded
// command; fan-out notifications to other sessions are additional.
func (r *Router) HandleMessage(c *hub.Client, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Recovered handler panic for %s: %v", c.Addr(), rec)
			r.hub.Reply(c, protocol.MustEncode(protocol.CmdServerError, protocol.Refusal{
				ErrorCode: protocol.CodeInternal,
				Reason:    fmt.Sprint(rec),
			}))
		}
	}()

	in, ferr := protocol.Decode(raw)
	if ferr != nil {
		log.Printf("Parse error from %s: %v", c.Addr(), ferr)
		r.hub.Reply(c, protocol.MustEncode(protocol.CmdServerError, protocol.ParsingError{
			ErrorCode: protocol.CodeParsing,
			Field:     ferr.Path,
			Reason:    ferr.Reason,
		}))
		return
	}

	// Authentication commands bypass the permission gate.
	switch in.Command {
	case protocol.CmdLoginRequest:
		r.auth.Login(c, in.Payload.(protocol.Credentials))
		return
	case protocol.CmdSignupRequest:
		r.auth.Signup(c, in.Payload.(protocol.Credentials))
		return
	}

	userID, bound := c.UserID()

	switch in.Command {
	case protocol.CmdPing, protocol.CmdPong, protocol.CmdDisconnect:
		// Transport pseudo-commands are non-actionable without a session.
		if !bound {
			return
		}
		r.handlePseudo(c, in.Command, userID)
		return
	}

	if !bound {
		r.hub.Reply(c, protocol.MustEncode(protocol.CmdServerError, protocol.PermissionError{
			ErrorCode: protocol.CodeMissingPermission,
			Command:   in.Command,
		}))
		return
	}

	switch in.Command {
	case protocol.CmdChannelJoinRequest:
		r.channels.Join(c, userID, in.Payload.(protocol.ChannelRef))
	case protocol.CmdChannelCreateRequest:
		r.channels.Create(c, userID, in.Payload.(protocol.ChannelCreate))
	case protocol.CmdChannelLeaveRequest:
		r.channels.Leave(c, userID, in.Payload.(protocol.ChannelRef))
	case protocol.CmdSendMessage:
		r.messages.Send(c, userID, in.Payload.(protocol.SendMessage))
	case protocol.CmdRequestMessageHistory:
		r.messages.History(c, userID, in.Payload.(protocol.HistoryRequest))
	case protocol.CmdLookupRequest:
		r.messages.Lookup(c, userID, in.Payload.(protocol.LookupRequest))
	case protocol.CmdOutgoingEncodedFile:
		r.messages.RelayFile(c, userID, in.Payload.(protocol.EncodedFile))
	case protocol.CmdNicknameChangeRequest:
		r.auth.ChangeNickname(c, userID, in.Payload.(protocol.NicknameChange))
	}
}

// handlePseudo services envelope-level ping/pong/disconnect for a bound
// session. Control-frame pings and pongs are handled by the transport; the
// envelope forms exist for clients that cannot emit control frames.
func (r *Router) handlePseudo(c *hub.Client, command, userID string) {
	switch command {
	case protocol.CmdPing:
		if err := r.auth.Touch(userID); err != nil {
			log.Printf("Failed to touch %s on ping: %v", userID, err)
		}
		r.hub.Reply(c, protocol.MustEncode(protocol.CmdPong, nil))
	case protocol.CmdPong:
		if err := r.auth.Touch(userID); err != nil {
			log.Printf("Failed to touch %s on pong: %v", userID, err)
		}
	case protocol.CmdDisconnect:
		r.hub.Terminate(c)
	}
}

// HandlePong reacts to a transport-level pong control frame: the hub has
// already raised the liveness flag; a bound session additionally gets its
// last-seen/self-destruct touch persisted.
func (r *Router) HandlePong(c *hub.Client) {
	if userID, bound := c.UserID(); bound {
		if err := r.auth.Touch(userID); err != nil {
			log.Printf("Failed to touch %s on pong: %v", userID, err)
		}
	}
}

// HandleHangup is the disconnect pseudo-command every teardown path routes
// through, so identity resolution is consistent whether the client said
// goodbye, vanished, or was terminated by the liveness sweep.
func (r *Router) HandleHangup(c *hub.Client) {
	userID, bound := c.UserID()
	if !bound {
		log.Printf("Client disconnected from %s", c.Addr())
		return
	}
	if err := r.auth.Touch(userID); err != nil {
		log.Printf("Failed to touch %s at disconnect: %v", userID, err)
	}
	r.hub.Unbind(c)
	log.Printf("Client %s disconnected from %s", userID, c.Addr())
}
