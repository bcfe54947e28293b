// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
	"golang.org/x/sync/semaphore"

	"github.com/catcord/langrelay/pkg/configstore"
	"github.com/catcord/langrelay/pkg/langcodes"
	"github.com/catcord/langrelay/pkg/translate"
)

const (
	// guildConcurrency bounds simultaneous in-flight deliveries per
	// guild so translation providers are not hammered into rate limits.
	guildConcurrency = 2

	replyPreviewRunes  = 90
	attachmentLimit    = 10
	defaultAutoArchive = 1440
)

// Engine is the relay dispatcher. One instance serves all guilds; all
// state is keyed by guild id and loaded lazily.
type Engine struct {
	platform   ChatPlatform
	translator *translate.Adapter
	store      configstore.Store
	mentions   *MentionResolver
	identities *IdentityCache
	links      *LinkageTable
	log        zerolog.Logger

	configs  *exsync.Map[string, *configstore.GuildConfig]
	sems     *exsync.Map[string, *semaphore.Weighted]
	srcLocks *exsync.Map[string, *sync.Mutex]
}

func NewEngine(platform ChatPlatform, translator *translate.Adapter, store configstore.Store, log zerolog.Logger) *Engine {
	return &Engine{
		platform:   platform,
		translator: translator,
		store:      store,
		mentions:   NewMentionResolver(platform),
		identities: NewIdentityCache(platform, log),
		links:      NewLinkageTable(),
		log:        log.With().Str("component", "relay").Logger(),

		configs:  exsync.NewMap[string, *configstore.GuildConfig](),
		sems:     exsync.NewMap[string, *semaphore.Weighted](),
		srcLocks: exsync.NewMap[string, *sync.Mutex](),
	}
}

// Config returns the guild's configuration, loading it from the store
// on first reference. The in-memory copy is authoritative for the rest
// of the session.
func (e *Engine) Config(guildID string) *configstore.GuildConfig {
	if cfg, ok := e.configs.Get(guildID); ok {
		return cfg
	}
	cfg, err := e.store.Load(guildID)
	if err != nil {
		e.log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to load guild config, using defaults")
		cfg = configstore.NewGuildConfig(configstore.Provider(e.translator.Default()))
	}
	actual, _ := e.configs.GetOrSet(guildID, cfg)
	return actual
}

// Configure applies a mutation to the guild's configuration and
// persists the result. The mutation runs against the live in-memory
// copy, so the next message already sees it even if the save fails.
func (e *Engine) Configure(guildID string, mutate func(*configstore.GuildConfig) error) error {
	cfg := e.Config(guildID)
	if err := mutate(cfg); err != nil {
		return err
	}
	if err := e.store.Save(guildID, cfg); err != nil {
		return fmt.Errorf("failed to persist guild config: %w", err)
	}
	return nil
}

// SetChannelLanguage normalizes the language code and maps the channel
// within a group, creating the group as needed.
func (e *Engine) SetChannelLanguage(guildID, group, channel, code string) (string, error) {
	normalized, ok := langcodes.Normalize(code)
	if !ok {
		return "", fmt.Errorf("invalid language code %q", code)
	}
	err := e.Configure(guildID, func(cfg *configstore.GuildConfig) error {
		cfg.SetChannelLanguage(group, channel, normalized)
		return nil
	})
	return normalized, err
}

// RemoveChannel drops a channel from a group. It reports whether a
// mapping existed.
func (e *Engine) RemoveChannel(guildID, group, channel string) (bool, error) {
	var removed bool
	err := e.Configure(guildID, func(cfg *configstore.GuildConfig) error {
		removed = cfg.RemoveChannel(group, channel)
		return nil
	})
	return removed, err
}

// DeleteGroup removes a group and its per-group options.
func (e *Engine) DeleteGroup(guildID, group string) (bool, error) {
	var deleted bool
	err := e.Configure(guildID, func(cfg *configstore.GuildConfig) error {
		deleted = cfg.DeleteGroup(group)
		return nil
	})
	return deleted, err
}

func (e *Engine) SetGroupEnabled(guildID, group string, enabled bool) error {
	return e.Configure(guildID, func(cfg *configstore.GuildConfig) error {
		cfg.SetGroupEnabled(group, enabled)
		return nil
	})
}

func (e *Engine) SetProvider(guildID string, provider configstore.Provider) error {
	if !e.translator.Has(string(provider)) {
		return fmt.Errorf("provider %q is not configured", provider)
	}
	return e.Configure(guildID, func(cfg *configstore.GuildConfig) error {
		cfg.Provider = provider
		return nil
	})
}

// SuggestLanguages returns language suggestions matching the query,
// restricted to the guild provider's accepted target codes when the
// provider can enumerate them. Command surfaces use this for
// autocomplete.
func (e *Engine) SuggestLanguages(ctx context.Context, guildID, query string) []langcodes.Suggestion {
	cfg := e.Config(guildID)
	accepted := e.translator.Targets(ctx, string(cfg.Provider))
	return langcodes.Suggest(query, accepted)
}

// target is one deduplicated destination of a fan-out: the channel, the
// language configured for it, and the source channel's language in the
// group that contributed it.
type target struct {
	channel    Channel
	lang       string
	sourceLang string
}

// HandleMessage runs the full dispatch pipeline for one inbound
// message. All failures are local: a destination that cannot be served
// is logged and skipped, never aborting its siblings.
func (e *Engine) HandleMessage(ctx context.Context, msg *Message) {
	if msg.Author.IsRelay || msg.Author.IsBot {
		return
	}
	if msg.Text == "" && len(msg.Attachments) == 0 {
		return
	}

	cfg := e.Config(msg.GuildID)
	if !cfg.Options.Enabled {
		return
	}
	groups := cfg.GroupsForChannel(msg.Channel.Name)
	if len(groups) == 0 {
		return
	}

	channels, err := e.platform.TextChannels(ctx, msg.GuildID)
	if err != nil {
		e.log.Error().Err(err).Str("guild_id", msg.GuildID).Msg("Failed to enumerate text channels")
		return
	}

	targets := e.collectTargets(cfg, groups, msg.Channel.Name, channels)
	if len(targets) == 0 {
		return
	}

	log := e.log.With().
		Str("guild_id", msg.GuildID).
		Str("source_channel", msg.Channel.Name).
		Str("message_id", msg.ID).
		Logger()

	resolved := e.mentions.Rewrite(ctx, msg)
	replyBase := e.replyContext(ctx, msg)

	// Fan-outs from the same source channel must reach each destination
	// in send order.
	lock := e.sourceLock(msg.GuildID, msg.Channel.ID)
	lock.Lock()
	defer lock.Unlock()

	sem := e.semaphore(msg.GuildID)
	results := make([]LinkedMessage, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		wg.Add(1)
		go func(i int, tgt target) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			containerID, messageID, err := e.deliverOne(ctx, log, cfg, msg, tgt, resolved, replyBase)
			if err != nil {
				log.Warn().Err(err).Str("target_channel", tgt.channel.Name).Msg("Delivery failed")
				return
			}
			if messageID != "" {
				results[i] = LinkedMessage{ContainerID: containerID, MessageID: messageID}
			}
		}(i, tgt)
	}
	wg.Wait()

	members := make([]LinkedMessage, 0, len(results)+1)
	members = append(members, LinkedMessage{ContainerID: msg.ContainerID(), MessageID: msg.ID})
	for _, r := range results {
		if r.MessageID != "" {
			members = append(members, r)
		}
	}
	e.links.Commit(members)
}

// collectTargets walks the enabled groups in sorted order and builds
// the deduplicated destination list. When a channel appears in several
// groups, the first group's language mapping wins.
func (e *Engine) collectTargets(cfg *configstore.GuildConfig, groups []string, sourceName string, channels map[string]Channel) []target {
	seen := map[string]struct{}{sourceName: {}}
	var targets []target
	for _, groupName := range groups {
		mapping := cfg.Groups[groupName]
		sourceLang := mapping[sourceName]
		for _, name := range sortedKeys(mapping) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			ch, ok := channels[name]
			if !ok {
				continue
			}
			targets = append(targets, target{channel: ch, lang: mapping[name], sourceLang: sourceLang})
		}
	}
	return targets
}

// replyContext renders the attribution line appended when reply
// context is enabled, e.g. "(reply to Ada: the original text…)".
// Mention tokens in the replied-to text are resolved like the body's,
// then the preview is capped at 90 runes.
func (e *Engine) replyContext(ctx context.Context, msg *Message) string {
	if msg.Reply == nil {
		return ""
	}
	preview := e.mentions.RewriteText(ctx, msg.GuildID, msg.Hints, msg.Reply.Text)
	if runes := []rune(preview); len(runes) > replyPreviewRunes {
		preview = string(runes[:replyPreviewRunes]) + "…"
	}
	return fmt.Sprintf("(reply to %s: %s)", msg.Reply.AuthorDisplayName, preview)
}

// deliverOne serves a single destination: translate, append reply
// context, carry attachments, pick the thread, send impersonated with
// plain-send fallback. It returns the container and message id of the
// delivered copy, or empty ids when there was nothing to send.
func (e *Engine) deliverOne(ctx context.Context, log zerolog.Logger, cfg *configstore.GuildConfig, msg *Message, tgt target, resolved, replyBase string) (string, string, error) {
	out := resolved
	if out != "" && tgt.lang != "" {
		translated, err := e.translator.Translate(ctx, string(cfg.Provider), out, tgt.lang, tgt.sourceLang)
		if err != nil {
			log.Warn().Err(err).
				Str("target_channel", tgt.channel.Name).
				Str("target_lang", tgt.lang).
				Msg("Translation failed, forwarding untranslated text")
		} else {
			out = translated
		}
	}

	if cfg.Options.ReplyContext && replyBase != "" {
		line := replyBase
		if tgt.lang != "" {
			if translated, err := e.translator.Translate(ctx, string(cfg.Provider), replyBase, tgt.lang, tgt.sourceLang); err == nil {
				line = translated
			}
		}
		if out != "" {
			out = out + "\n\n> " + line
		} else {
			out = "> " + line
		}
	}

	files := e.downloadAttachments(ctx, log, msg)
	if out == "" && len(files) == 0 {
		return "", "", nil
	}

	containerID := tgt.channel.ID
	threadID := ""
	if cfg.Options.ThreadMirroring && msg.Thread != nil {
		if th := e.findOrCreateThread(ctx, log, tgt.channel, msg.Thread); th != nil {
			threadID = th.ID
			containerID = th.ID
		}
	}

	req := SendRequest{
		ChannelID: tgt.channel.ID,
		ThreadID:  threadID,
		Text:      out,
		Files:     files,
		Username:  msg.Author.DisplayName,
		AvatarURL: msg.Author.AvatarURL,
	}

	if identity := e.identities.Get(ctx, tgt.channel.ID); identity != nil {
		messageID, err := identity.Send(ctx, req)
		if err == nil {
			return containerID, messageID, nil
		}
		log.Warn().Err(err).Str("target_channel", tgt.channel.Name).
			Msg("Impersonated send failed, falling back to plain send")
		e.identities.Invalidate(tgt.channel.ID)
	}

	messageID, err := e.platform.Send(ctx, req)
	if err != nil {
		return "", "", err
	}
	return containerID, messageID, nil
}

// downloadAttachments prepares up to 10 attachments for re-upload.
// A failed download drops that attachment only.
func (e *Engine) downloadAttachments(ctx context.Context, log zerolog.Logger, msg *Message) []File {
	atts := msg.Attachments
	if len(atts) > attachmentLimit {
		atts = atts[:attachmentLimit]
	}
	var files []File
	for _, att := range atts {
		data, err := e.platform.DownloadAttachment(ctx, att)
		if err != nil {
			log.Warn().Err(err).Str("attachment", att.Name).Msg("Failed to read attachment, skipping it")
			continue
		}
		files = append(files, File{Name: att.Name, Spoiler: att.Spoiler, Data: data})
	}
	return files
}

// findOrCreateThread mirrors the source thread into the destination
// channel: reuse a live thread with the same name, revive a matching
// archived one, otherwise create it with the source's auto-archive
// duration. Any failure degrades to posting in the channel itself.
func (e *Engine) findOrCreateThread(ctx context.Context, log zerolog.Logger, ch Channel, src *Thread) *Thread {
	active, err := e.platform.ActiveThreads(ctx, ch.ID)
	if err != nil {
		log.Warn().Err(err).Str("target_channel", ch.Name).Msg("Failed to list threads")
		return nil
	}
	for i, th := range active {
		if th.Name == src.Name && !th.Archived {
			return &active[i]
		}
	}

	archived, err := e.platform.ArchivedThreads(ctx, ch.ID)
	if err == nil {
		for i, th := range archived {
			if th.Name == src.Name {
				if err := e.platform.UnarchiveThread(ctx, th.ID); err == nil {
					archived[i].Archived = false
					return &archived[i]
				}
			}
		}
	}

	autoArchive := src.AutoArchiveMinutes
	if autoArchive == 0 {
		autoArchive = defaultAutoArchive
	}
	created, err := e.platform.CreateThread(ctx, ch.ID, src.Name, autoArchive)
	if err != nil {
		log.Warn().Err(err).Str("target_channel", ch.Name).Str("thread", src.Name).
			Msg("Failed to create mirrored thread, posting to channel")
		return nil
	}
	return created
}

// HandleReaction replays a reaction add or remove onto every sibling of
// the reacted message. Reactions placed by the relay itself are
// ignored, otherwise each mirror step would trigger the next.
func (e *Engine) HandleReaction(ctx context.Context, ev *ReactionEvent) {
	if ev.FromRelay {
		return
	}
	cfg := e.Config(ev.GuildID)
	if !cfg.Options.ReactionMirroring {
		return
	}
	siblings := e.links.Siblings(ev.MessageID)
	for _, sib := range siblings {
		var err error
		if ev.Remove {
			err = e.platform.RemoveReaction(ctx, sib.ContainerID, sib.MessageID, ev.Emoji)
		} else {
			err = e.platform.AddReaction(ctx, sib.ContainerID, sib.MessageID, ev.Emoji)
		}
		if err != nil {
			e.log.Warn().Err(err).
				Str("guild_id", ev.GuildID).
				Str("sibling_message_id", sib.MessageID).
				Str("emoji", ev.Emoji).
				Msg("Failed to mirror reaction")
		}
	}
}

// Links exposes the linkage table, mainly for tests and diagnostics.
func (e *Engine) Links() *LinkageTable {
	return e.links
}

func (e *Engine) semaphore(guildID string) *semaphore.Weighted {
	if sem, ok := e.sems.Get(guildID); ok {
		return sem
	}
	sem, _ := e.sems.GetOrSet(guildID, semaphore.NewWeighted(guildConcurrency))
	return sem
}

func (e *Engine) sourceLock(guildID, channelID string) *sync.Mutex {
	key := guildID + "/" + channelID
	if mu, ok := e.srcLocks.Get(key); ok {
		return mu
	}
	mu, _ := e.srcLocks.GetOrSet(key, &sync.Mutex{})
	return mu
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
