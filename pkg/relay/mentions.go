// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"regexp"
	"strings"
)

// Zero-width characters some clients smuggle into message bodies and
// even into the middle of mention tokens. They break token matching
// and confuse translation providers, so they are stripped before any
// other processing.
var zeroWidthReplacer = strings.NewReplacer(
	"​", "",
	"‎", "",
	"‏", "",
	"⁠", "",
)

var (
	userMentionRe    = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRe    = regexp.MustCompile(`<@&(\d+)>`)
	channelMentionRe = regexp.MustCompile(`<#(\d+)>`)
)

// MentionResolver rewrites mention tokens so the mirrored copy stays
// clickable where the referenced entity still exists and reads
// naturally where it does not.
type MentionResolver struct {
	platform ChatPlatform
}

func NewMentionResolver(platform ChatPlatform) *MentionResolver {
	return &MentionResolver{platform: platform}
}

// Rewrite strips zero-width characters and processes every mention
// token: tokens whose entity resolves in the guild are kept clickable
// (in canonical form), unresolvable ones degrade to a plain name from
// the event's display-name hints, then to the raw id.
func (r *MentionResolver) Rewrite(ctx context.Context, msg *Message) string {
	return r.RewriteText(ctx, msg.GuildID, msg.Hints, msg.Text)
}

// RewriteText is Rewrite for text that is not the message body itself,
// such as the replied-to preview, using the carrying message's hints.
func (r *MentionResolver) RewriteText(ctx context.Context, guildID string, hints Hints, text string) string {
	text = zeroWidthReplacer.Replace(text)

	text = userMentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := userMentionRe.FindStringSubmatch(tok)[1]
		if _, ok := r.platform.ResolveUser(ctx, guildID, id); ok {
			return "<@" + id + ">"
		}
		if name := hints.Users[id]; name != "" {
			return "@" + name
		}
		return "@" + id
	})

	text = roleMentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := roleMentionRe.FindStringSubmatch(tok)[1]
		if _, ok := r.platform.ResolveRole(ctx, guildID, id); ok {
			return tok
		}
		if name := hints.Roles[id]; name != "" {
			return "@" + name
		}
		return "@" + id
	})

	text = channelMentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := channelMentionRe.FindStringSubmatch(tok)[1]
		if _, ok := r.platform.ResolveChannel(ctx, guildID, id); ok {
			return tok
		}
		if name := hints.Channels[id]; name != "" {
			return "#" + name
		}
		return "#" + id
	})

	return text
}
