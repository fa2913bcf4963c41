// Package model defines the persisted records backing the users, channels,
// and messages tables. Records are flat JSON objects keyed by their domain
// primary key: email-style id for users, generated id for the rest.
package model

import (
	"slices"
	"time"
)

// User is an account record. The core never deletes users; expiry and
// cleanup are handled by an external scheduled job that shares the store.
type User struct {
	ID             string    `json:"id"`
	Nickname       string    `json:"nickname"`
	PasswordHash   string    `json:"password"`
	Channels       []string  `json:"channels"`
	Friends        []string  `json:"friends"`
	LastSeen       time.Time `json:"last_seen"`
	SelfDestruct   time.Time `json:"self_destruct"`
	DestroyWarning bool      `json:"destroy_warning"`
}

// IsMember reports whether the user belongs to the given channel.
func (u User) IsMember(channelID string) bool {
	return slices.Contains(u.Channels, channelID)
}

// Channel is a named chat room. Channels are never deleted by the core.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one persisted chat message. Append-only in intent; the store
// does not enforce it.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	ChannelID string    `json:"channel"`
	Time      time.Time `json:"time"`
	Text      string    `json:"text"`
}

// UserKey, ChannelKey and MessageKey are the primary-key extractors handed
// to the store tables.
func UserKey(u User) string       { return u.ID }
func ChannelKey(c Channel) string { return c.ID }
func MessageKey(m Message) string { return m.ID }
