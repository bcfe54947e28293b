// Copyright 2024-2026 Aiku AI

package mattermost

import "fmt"

// Common Mattermost emoji names and their Unicode forms. Anything not
// listed passes through as a :name: token.
var emojiByName = map[string]string{
	"+1":               "\U0001f44d",
	"-1":               "\U0001f44e",
	"heart":            "❤️",
	"smile":            "\U0001f604",
	"laughing":         "\U0001f606",
	"thumbsup":         "\U0001f44d",
	"thumbsdown":       "\U0001f44e",
	"wave":             "\U0001f44b",
	"clap":             "\U0001f44f",
	"fire":             "\U0001f525",
	"100":              "\U0001f4af",
	"tada":             "\U0001f389",
	"eyes":             "\U0001f440",
	"thinking":         "\U0001f914",
	"white_check_mark": "✅",
	"x":                "❌",
	"warning":          "⚠️",
	"rocket":           "\U0001f680",
	"star":             "⭐",
	"pray":             "\U0001f64f",
}

// Reverse lookup. Kept explicit because some emoji have several names
// ("+1" and "thumbsup") and the canonical one must win.
var emojiNames = map[string]string{
	"\U0001f44d":   "+1",
	"\U0001f44e":   "-1",
	"❤️": "heart",
	"\U0001f604":   "smile",
	"\U0001f606":   "laughing",
	"\U0001f44b":   "wave",
	"\U0001f44f":   "clap",
	"\U0001f525":   "fire",
	"\U0001f4af":   "100",
	"\U0001f389":   "tada",
	"\U0001f440":   "eyes",
	"\U0001f914":   "thinking",
	"✅":       "white_check_mark",
	"❌":       "x",
	"⚠️": "warning",
	"\U0001f680":   "rocket",
	"⭐":       "star",
	"\U0001f64f":   "pray",
}

// reactionToEmoji converts a Mattermost emoji name to a Unicode emoji.
func reactionToEmoji(name string) string {
	if emoji, ok := emojiByName[name]; ok {
		return emoji
	}
	return fmt.Sprintf(":%s:", name)
}

// emojiToReaction converts a Unicode emoji to a Mattermost emoji name.
func emojiToReaction(emoji string) string {
	if name, ok := emojiNames[emoji]; ok {
		return name
	}
	// Strip colons for custom emoji names.
	if len(emoji) > 2 && emoji[0] == ':' && emoji[len(emoji)-1] == ':' {
		return emoji[1 : len(emoji)-1]
	}
	return emoji
}
