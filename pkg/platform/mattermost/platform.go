// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/catcord/langrelay/pkg/relay"
)

// TextChannels enumerates the open and private channels of the team the
// bot is a member of, keyed by channel name. The enumeration is cached
// per team and invalidated when a channel create/update/delete event
// arrives; callers must treat the returned map as read-only.
func (c *Client) TextChannels(ctx context.Context, guildID string) (map[string]relay.Channel, error) {
	teamID := guildID
	if teamID == "" {
		teamID = c.teamID
	}
	if cached, ok := c.teamChannels.Get(teamID); ok {
		return cached, nil
	}

	channels, _, err := c.api.GetChannelsForTeamForUser(ctx, teamID, c.botUserID, false, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	out := make(map[string]relay.Channel, len(channels))
	for _, ch := range channels {
		if ch.Type != model.ChannelTypeOpen && ch.Type != model.ChannelTypePrivate {
			continue
		}
		c.cacheChannel(ch)
		out[ch.Name] = relay.Channel{ID: ch.Id, Name: ch.Name}
	}
	c.teamChannels.Set(teamID, out)
	return out, nil
}

func (c *Client) ResolveUser(ctx context.Context, guildID, userID string) (string, bool) {
	user, err := c.userByID(ctx, userID)
	if err != nil {
		return "", false
	}
	return userDisplayName(user), true
}

// ResolveRole always reports failure: Mattermost has no per-guild
// mentionable roles, so role tokens degrade to their hint names.
func (c *Client) ResolveRole(ctx context.Context, guildID, roleID string) (string, bool) {
	return "", false
}

func (c *Client) ResolveChannel(ctx context.Context, guildID, channelID string) (string, bool) {
	ch, err := c.channelByID(ctx, channelID)
	if err != nil {
		return "", false
	}
	return ch.Name, true
}

// ActiveThreads returns nothing: Mattermost threads are anonymous post
// chains, not named entities that could be matched across channels.
func (c *Client) ActiveThreads(ctx context.Context, channelID string) ([]relay.Thread, error) {
	return nil, nil
}

func (c *Client) ArchivedThreads(ctx context.Context, channelID string) ([]relay.Thread, error) {
	return nil, nil
}

func (c *Client) UnarchiveThread(ctx context.Context, threadID string) error {
	return nil
}

// CreateThread always fails; callers degrade to posting in the channel
// itself. Cross-channel thread mirroring needs named threads, which
// Mattermost does not have.
func (c *Client) CreateThread(ctx context.Context, channelID, name string, autoArchiveMinutes int) (*relay.Thread, error) {
	return nil, errors.New("mattermost has no named threads")
}

func (c *Client) DownloadAttachment(ctx context.Context, att relay.Attachment) ([]byte, error) {
	data, _, err := c.api.GetFile(ctx, att.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", att.ID, err)
	}
	return data, nil
}

// Send posts under the bot's own identity. Mention suppression is
// inherent here: rewritten tokens are not Mattermost @-mentions, so
// they never ping.
func (c *Client) Send(ctx context.Context, req relay.SendRequest) (string, error) {
	return c.createPost(ctx, req, nil)
}

func (c *Client) createPost(ctx context.Context, req relay.SendRequest, props model.StringInterface) (string, error) {
	var fileIDs []string
	for _, f := range req.Files {
		resp, _, err := c.api.UploadFile(ctx, f.Data, req.ChannelID, f.Name)
		if err != nil {
			c.log.Warn().Err(err).Str("file", f.Name).Msg("Failed to upload file, dropping it")
			continue
		}
		if len(resp.FileInfos) > 0 {
			fileIDs = append(fileIDs, resp.FileInfos[0].Id)
		}
	}
	if req.Text == "" && len(fileIDs) == 0 {
		return "", errors.New("nothing to send")
	}

	post := &model.Post{
		ChannelId: req.ChannelID,
		Message:   req.Text,
		RootId:    req.ThreadID,
		FileIds:   fileIDs,
	}
	for k, v := range props {
		post.AddProp(k, v)
	}
	created, _, err := c.api.CreatePost(ctx, post)
	if err != nil {
		return "", fmt.Errorf("failed to create post: %w", err)
	}
	return created.Id, nil
}

// webhookIdentity posts through the bot account with webhook override
// props. Posting via the raw webhook URL would not return a post id,
// which the linkage table needs.
type webhookIdentity struct {
	c    *Client
	hook *model.IncomingWebhook
}

func (w *webhookIdentity) Name() string {
	return w.hook.DisplayName
}

func (w *webhookIdentity) Send(ctx context.Context, req relay.SendRequest) (string, error) {
	props := model.StringInterface{
		"from_webhook":      "true",
		"override_username": req.Username,
	}
	if req.AvatarURL != "" {
		props["override_icon_url"] = req.AvatarURL
	}
	return w.c.createPost(ctx, req, props)
}

// ListSendIdentities returns the incoming webhooks bound to a channel.
func (c *Client) ListSendIdentities(ctx context.Context, channelID string) ([]relay.SendIdentity, error) {
	hooks, _, err := c.api.GetIncomingWebhooks(ctx, 0, 200, "")
	if err != nil {
		if isPermissionError(err) {
			return nil, relay.ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to list incoming webhooks: %w", err)
	}
	var out []relay.SendIdentity
	for _, hook := range hooks {
		if hook.ChannelId == channelID {
			out = append(out, &webhookIdentity{c: c, hook: hook})
		}
	}
	return out, nil
}

func (c *Client) CreateSendIdentity(ctx context.Context, channelID, name string) (relay.SendIdentity, error) {
	hook, _, err := c.api.CreateIncomingWebhook(ctx, &model.IncomingWebhook{
		ChannelId:   channelID,
		DisplayName: name,
		Description: "Message relay delivery identity",
	})
	if err != nil {
		if isPermissionError(err) {
			return nil, relay.ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to create incoming webhook: %w", err)
	}
	return &webhookIdentity{c: c, hook: hook}, nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	_, _, err := c.api.SaveReaction(ctx, &model.Reaction{
		UserId:    c.botUserID,
		PostId:    messageID,
		EmojiName: emojiToReaction(emoji),
	})
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID, emoji string) error {
	_, err := c.api.DeleteReaction(ctx, &model.Reaction{
		UserId:    c.botUserID,
		PostId:    messageID,
		EmojiName: emojiToReaction(emoji),
	})
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func isPermissionError(err error) bool {
	var appErr *model.AppError
	return errors.As(err, &appErr) && appErr.StatusCode == http.StatusForbidden
}
