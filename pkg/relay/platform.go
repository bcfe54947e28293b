// Copyright 2024-2026 Aiku AI

// Package relay implements the per-message fan-out pipeline: group
// resolution, destination deduplication, translation with graceful
// degradation, identity-preserving delivery, message linkage and
// reaction mirroring. The chat platform itself is abstracted behind
// the ChatPlatform capability interface.
package relay

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by platform operations the relay
// recovers from by degrading to a lesser delivery mode.
var ErrPermissionDenied = errors.New("insufficient permission")

// Channel is a text channel the relay can deliver to.
type Channel struct {
	ID   string
	Name string
}

// Thread is a named sub-conversation anchored to a channel.
type Thread struct {
	ID                 string
	Name               string
	Archived           bool
	AutoArchiveMinutes int
}

// Author identifies who wrote a message. IsRelay marks messages
// produced by a relay-owned send identity; those are never relayed
// again (loop prevention).
type Author struct {
	ID          string
	DisplayName string
	AvatarURL   string
	IsBot       bool
	IsRelay     bool
}

// Attachment references a file on the source message.
type Attachment struct {
	ID      string
	Name    string
	URL     string
	Spoiler bool
}

// ReplyRef carries enough of the replied-to message to render a
// context preview.
type ReplyRef struct {
	AuthorDisplayName string
	Text              string
}

// Hints are display names carried on the inbound event payload,
// consulted before any remote lookup when rewriting mention tokens.
type Hints struct {
	Users    map[string]string
	Roles    map[string]string
	Channels map[string]string
}

// Message is one inbound chat message. Channel is always the text
// channel; when the message was posted inside a thread, the platform
// adapter dereferences the thread to its parent and sets Thread.
type Message struct {
	ID          string
	GuildID     string
	Channel     Channel
	Thread      *Thread
	Author      Author
	Text        string
	Attachments []Attachment
	Reply       *ReplyRef
	Hints       Hints
}

// ContainerID is where the message actually lives: the thread if it
// was posted in one, else the channel.
func (m *Message) ContainerID() string {
	if m.Thread != nil {
		return m.Thread.ID
	}
	return m.Channel.ID
}

// ReactionEvent is a reaction added to or removed from a message.
// FromRelay marks reactions placed by the relay's own identity, which
// must be ignored to prevent infinite reflection.
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	Emoji     string
	UserID    string
	Remove    bool
	FromRelay bool
}

// File is attachment content prepared for re-upload.
type File struct {
	Name    string
	Spoiler bool
	Data    []byte
}

// SendRequest describes one outbound delivery. Implementations must
// suppress mention notifications platform-side: rewritten tokens stay
// clickable but never ping.
type SendRequest struct {
	ChannelID string
	ThreadID  string
	Text      string
	Files     []File
	Username  string
	AvatarURL string
}

// SendIdentity is a reusable impersonation handle scoped to one
// channel. Send delivers under the identity's name/avatar and returns
// the delivered message id.
type SendIdentity interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (string, error)
}

// ChatPlatform is the capability surface the relay core needs from a
// chat platform. Lookup methods consult a local cache first and fall
// back to a remote fetch; ok is false when neither resolves.
type ChatPlatform interface {
	// TextChannels enumerates the guild's text channels by name.
	TextChannels(ctx context.Context, guildID string) (map[string]Channel, error)

	ResolveUser(ctx context.Context, guildID, userID string) (string, bool)
	ResolveRole(ctx context.Context, guildID, roleID string) (string, bool)
	ResolveChannel(ctx context.Context, guildID, channelID string) (string, bool)

	ActiveThreads(ctx context.Context, channelID string) ([]Thread, error)
	ArchivedThreads(ctx context.Context, channelID string) ([]Thread, error)
	UnarchiveThread(ctx context.Context, threadID string) error
	CreateThread(ctx context.Context, channelID, name string, autoArchiveMinutes int) (*Thread, error)

	DownloadAttachment(ctx context.Context, att Attachment) ([]byte, error)

	// Send delivers under the relay's own identity (the fallback when
	// no send identity is available) and returns the message id.
	Send(ctx context.Context, req SendRequest) (string, error)

	// ListSendIdentities and CreateSendIdentity manage impersonation
	// handles in a channel. Both return ErrPermissionDenied when the
	// relay lacks the platform permission.
	ListSendIdentities(ctx context.Context, channelID string) ([]SendIdentity, error)
	CreateSendIdentity(ctx context.Context, channelID, name string) (SendIdentity, error)

	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji string) error
}
