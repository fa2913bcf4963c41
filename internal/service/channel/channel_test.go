package channel

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/model"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

type harness struct {
	users    *store.Table[model.User]
	channels *store.Table[model.Channel]
	hub      *hub.Hub
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	users := store.NewTable(filepath.Join(dir, "users.json"), model.UserKey)
	channels := store.NewTable(filepath.Join(dir, "channels.json"), model.ChannelKey)

	h := hub.New(hub.Config{})
	go h.Run()
	t.Cleanup(func() {
		_ = h.Shutdown(time.Second)
	})

	return &harness{users: users, channels: channels, hub: h, svc: New(users, channels, h)}
}

func (hs *harness) session(t *testing.T, userID string, memberOf ...string) *hub.Client {
	t.Helper()
	if memberOf == nil {
		memberOf = []string{}
	}
	require.NoError(t, hs.users.Insert(model.User{
		ID:       userID,
		Nickname: userID,
		Channels: memberOf,
		Friends:  []string{},
	}))
	c := hub.NewClient(nil, hs.hub, userID+":1")
	hs.hub.Register(c)
	hs.hub.Bind(c, userID)
	return c
}

func recv(t *testing.T, c *hub.Client) protocol.Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.SendChan():
		require.True(t, ok, "send channel closed")
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
		return protocol.Envelope{}
	}
}

func recvRaw(t *testing.T, c *hub.Client) []byte {
	t.Helper()
	select {
	case raw, ok := <-c.SendChan():
		require.True(t, ok, "send channel closed")
		return raw
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
		return nil
	}
}

func TestJoin(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "ch-1", Name: "general"}))
	c := hs.session(t, "jane@doe.com")

	hs.svc.Join(c, "jane@doe.com", protocol.ChannelRef{ChannelID: "ch-1"})

	env := recv(t, c)
	require.Equal(t, protocol.CmdChannelJoinCompleted, env.Command)
	var completed protocol.ChannelCompleted
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, "general", completed.Channel.Name)

	user, _, err := hs.users.Get("jane@doe.com")
	require.NoError(t, err)
	assert.True(t, user.IsMember("ch-1"))
}

func TestJoinUnknownChannel(t *testing.T) {
	hs := newHarness(t)
	c := hs.session(t, "jane@doe.com")

	hs.svc.Join(c, "jane@doe.com", protocol.ChannelRef{ChannelID: "nope"})

	env := recv(t, c)
	require.Equal(t, protocol.CmdChannelJoinRefused, env.Command)
	var refusal protocol.ChannelRefusal
	require.NoError(t, json.Unmarshal(env.Data, &refusal))
	assert.Equal(t, "nope", refusal.ChannelID)
	assert.Equal(t, protocol.CodeNotFound, refusal.ErrorCode)
}

func TestJoinAlreadyMember(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "ch-1", Name: "general"}))
	c := hs.session(t, "jane@doe.com", "ch-1")

	hs.svc.Join(c, "jane@doe.com", protocol.ChannelRef{ChannelID: "ch-1"})

	env := recv(t, c)
	require.Equal(t, protocol.CmdChannelJoinRefused, env.Command)
	var refusal protocol.ChannelRefusal
	require.NoError(t, json.Unmarshal(env.Data, &refusal))
	assert.Equal(t, "ch-1", refusal.ChannelID)
	assert.Equal(t, protocol.CodeForbidden, refusal.ErrorCode)
}

func TestCreateAddsCreatorAndBroadcasts(t *testing.T) {
	hs := newHarness(t)
	creator := hs.session(t, "jane@doe.com")
	other := hs.session(t, "john@doe.com")

	hs.svc.Create(creator, "jane@doe.com", protocol.ChannelCreate{Name: "plans"})

	env := recv(t, creator)
	require.Equal(t, protocol.CmdChannelCreateCompleted, env.Command)
	var completed protocol.ChannelCompleted
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, "plans", completed.Channel.Name)
	assert.NotEmpty(t, completed.Channel.ChannelID)

	user, _, err := hs.users.Get("jane@doe.com")
	require.NoError(t, err)
	assert.True(t, user.IsMember(completed.Channel.ChannelID))

	// Every session sees the fresh channel list, not only the creator.
	assert.Equal(t, protocol.CmdChannelList, recv(t, creator).Command)
	assert.Equal(t, protocol.CmdChannelList, recv(t, other).Command)
}

func TestCreateCollisionExhaustion(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "dup", Name: "existing"}))
	c := hs.session(t, "jane@doe.com")

	attempts := 0
	hs.svc.newID = func() string {
		attempts++
		return "dup"
	}

	hs.svc.Create(c, "jane@doe.com", protocol.ChannelCreate{Name: "doomed"})

	env := recv(t, c)
	require.Equal(t, protocol.CmdChannelCreateRefused, env.Command)
	var refusal protocol.Refusal
	require.NoError(t, json.Unmarshal(env.Data, &refusal))
	assert.Equal(t, protocol.CodeRetryExhausted, refusal.ErrorCode)
	assert.Equal(t, "could not generate a unique channel id", refusal.Reason)
	assert.Equal(t, 3, attempts)

	// No mutation: the table still holds only the pre-existing channel.
	all, err := hs.channels.Filter(nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "existing", all[0].Name)

	user, _, err := hs.users.Get("jane@doe.com")
	require.NoError(t, err)
	assert.Empty(t, user.Channels)
}

func TestLeave(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "ch-1", Name: "general"}))
	c := hs.session(t, "jane@doe.com", "ch-1")

	hs.svc.Leave(c, "jane@doe.com", protocol.ChannelRef{ChannelID: "ch-1"})

	env := recv(t, c)
	require.Equal(t, protocol.CmdChannelLeaveCompleted, env.Command)

	user, _, err := hs.users.Get("jane@doe.com")
	require.NoError(t, err)
	assert.False(t, user.IsMember("ch-1"))

	assert.Equal(t, protocol.CmdChannelList, recv(t, c).Command)
}

func TestLeaveNotMember(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "ch-1", Name: "general"}))
	c := hs.session(t, "jane@doe.com")

	hs.svc.Leave(c, "jane@doe.com", protocol.ChannelRef{ChannelID: "ch-1"})

	env := recv(t, c)
	require.Equal(t, protocol.CmdChannelLeaveRefused, env.Command)
	var refusal protocol.ChannelRefusal
	require.NoError(t, json.Unmarshal(env.Data, &refusal))
	assert.Equal(t, protocol.CodeNotMember, refusal.ErrorCode)
}

func TestBroadcastChannelListIdempotent(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "ch-1", Name: "general"}))
	require.NoError(t, hs.channels.Insert(model.Channel{ID: "ch-2", Name: "random"}))
	a := hs.session(t, "a@x.com")
	b := hs.session(t, "b@x.com")

	hs.svc.BroadcastChannelList()
	first := recvRaw(t, a)
	assert.Equal(t, first, recvRaw(t, b))

	hs.svc.BroadcastChannelList()
	assert.Equal(t, first, recvRaw(t, a))
	assert.Equal(t, first, recvRaw(t, b))
}
