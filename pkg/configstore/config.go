// Copyright 2024-2026 Aiku AI

// Package configstore defines the per-guild relay configuration, its
// persisted JSON document shape, and the stores that load and save it.
package configstore

import (
	"encoding/json"
	"sort"
)

// Provider is the translation backend selected for a guild.
type Provider string

const (
	ProviderDeepL  Provider = "deepl"
	ProviderOpenAI Provider = "openai"
)

// DefaultGroup is the group legacy flat channel mappings migrate into.
const DefaultGroup = "default"

// Options are the global per-guild relay toggles.
type Options struct {
	Enabled           bool `json:"enabled"`
	ReplyContext      bool `json:"reply_context"`
	ThreadMirroring   bool `json:"thread_mirroring"`
	ReactionMirroring bool `json:"reaction_mirroring"`
}

// GuildConfig is the persisted relay configuration of one guild.
// Groups maps group name to a channel-name -> language-code mapping;
// a channel may appear in multiple groups. GroupOptions holds per-group
// enable flags; absent entries mean enabled.
type GuildConfig struct {
	Provider     Provider                     `json:"provider"`
	Options      Options                      `json:"options"`
	Groups       map[string]map[string]string `json:"groups"`
	GroupOptions map[string]bool              `json:"group_options"`
}

// NewGuildConfig returns a config with defaults: relay and reply
// context on, thread and reaction mirroring off.
func NewGuildConfig(defaultProvider Provider) *GuildConfig {
	return &GuildConfig{
		Provider: defaultProvider,
		Options: Options{
			Enabled:      true,
			ReplyContext: true,
		},
		Groups:       make(map[string]map[string]string),
		GroupOptions: make(map[string]bool),
	}
}

// GroupEnabled reports whether a group is enabled. Groups without an
// explicit flag default to enabled.
func (c *GuildConfig) GroupEnabled(name string) bool {
	if v, ok := c.GroupOptions[name]; ok {
		return v
	}
	return true
}

// GroupsForChannel returns the lexicographically sorted names of all
// enabled groups containing the channel. The sort makes the
// first-group-wins tie-break on duplicated destinations deterministic.
func (c *GuildConfig) GroupsForChannel(channel string) []string {
	var names []string
	for name, channels := range c.Groups {
		if !c.GroupEnabled(name) {
			continue
		}
		if _, ok := channels[channel]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetChannelLanguage assigns a language to a channel within a group,
// creating the group as needed.
func (c *GuildConfig) SetChannelLanguage(group, channel, lang string) {
	if c.Groups == nil {
		c.Groups = make(map[string]map[string]string)
	}
	if c.Groups[group] == nil {
		c.Groups[group] = make(map[string]string)
	}
	c.Groups[group][channel] = lang
}

// RemoveChannel drops a channel from a group. Reports whether a
// mapping was removed.
func (c *GuildConfig) RemoveChannel(group, channel string) bool {
	channels, ok := c.Groups[group]
	if !ok {
		return false
	}
	if _, ok := channels[channel]; !ok {
		return false
	}
	delete(channels, channel)
	return true
}

// DeleteGroup removes a group and its enable flag. Reports whether the
// group existed.
func (c *GuildConfig) DeleteGroup(name string) bool {
	_, ok := c.Groups[name]
	delete(c.Groups, name)
	delete(c.GroupOptions, name)
	return ok
}

// SetGroupEnabled records a per-group enable flag.
func (c *GuildConfig) SetGroupEnabled(name string, enabled bool) {
	if c.GroupOptions == nil {
		c.GroupOptions = make(map[string]bool)
	}
	c.GroupOptions[name] = enabled
}

// rawConfig is the tolerant decoding shape. Groups values are kept raw
// so a boolean stored where a channel map was expected can be coerced
// into a group option instead of failing the whole document. Mapping
// is the legacy flat channel -> language shape.
type rawConfig struct {
	Provider     string                     `json:"provider"`
	Options      json.RawMessage            `json:"options"`
	Groups       map[string]json.RawMessage `json:"groups"`
	GroupOptions map[string]bool            `json:"group_options"`
	Mapping      map[string]string          `json:"mapping"`
}

// legacy option key from before the options block was renamed.
const legacyReplyKey = "replymode"

// Decode parses a persisted guild document, applying forward migration
// from the legacy flat mapping shape and coercing misfiled boolean
// group entries into group options. Malformed JSON is an error; the
// stores recover from it by falling back to defaults.
func Decode(data []byte, defaultProvider Provider) (*GuildConfig, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	cfg := NewGuildConfig(defaultProvider)
	switch Provider(raw.Provider) {
	case ProviderDeepL, ProviderOpenAI:
		cfg.Provider = Provider(raw.Provider)
	}

	if len(raw.Options) > 0 {
		var opts map[string]bool
		if err := json.Unmarshal(raw.Options, &opts); err == nil {
			if v, ok := opts["enabled"]; ok {
				cfg.Options.Enabled = v
			}
			if v, ok := opts["reply_context"]; ok {
				cfg.Options.ReplyContext = v
			} else if v, ok := opts[legacyReplyKey]; ok {
				cfg.Options.ReplyContext = v
			}
			if v, ok := opts["thread_mirroring"]; ok {
				cfg.Options.ThreadMirroring = v
			}
			if v, ok := opts["reaction_mirroring"]; ok {
				cfg.Options.ReactionMirroring = v
			}
		}
	}

	for name, rawGroup := range raw.Groups {
		var channels map[string]string
		if err := json.Unmarshal(rawGroup, &channels); err == nil {
			cfg.Groups[name] = channels
			continue
		}
		var flag bool
		if err := json.Unmarshal(rawGroup, &flag); err == nil {
			cfg.GroupOptions[name] = flag
		}
		// Anything else in the group slot is dropped.
	}
	for name, v := range raw.GroupOptions {
		cfg.GroupOptions[name] = v
	}

	// Legacy flat mapping migrates into the default group unless a
	// migrated document already carries one.
	if len(raw.Mapping) > 0 && cfg.Groups[DefaultGroup] == nil {
		channels := make(map[string]string, len(raw.Mapping))
		for ch, lang := range raw.Mapping {
			channels[ch] = lang
		}
		cfg.Groups[DefaultGroup] = channels
	}

	return cfg, nil
}

// Encode renders the document in the persisted shape.
func Encode(cfg *GuildConfig) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// Store loads and saves per-guild configuration documents.
type Store interface {
	// Load returns the guild's configuration, or a fresh default
	// when none is persisted or the persisted form is corrupt.
	Load(guildID string) (*GuildConfig, error)
	// Save persists the configuration, replacing any previous form.
	Save(guildID string, cfg *GuildConfig) error
}
