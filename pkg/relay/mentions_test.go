// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"testing"
)

func TestRewriteMentions(t *testing.T) {
	t.Parallel()
	p := newFakePlatform()
	p.users["101"] = "Ada"
	p.roles["201"] = "mods"
	p.chanByID["301"] = "general-de"
	resolver := NewMentionResolver(p)

	tests := []struct {
		name  string
		text  string
		hints Hints
		want  string
	}{{
		name: "resolvable user keeps canonical token",
		text: "hi <@!101>",
		want: "hi <@101>",
	}, {
		name: "resolvable role and channel keep tokens",
		text: "<@&201> see <#301>",
		want: "<@&201> see <#301>",
	}, {
		name:  "unresolvable user degrades to hint name",
		text:  "hi <@999>",
		hints: Hints{Users: map[string]string{"999": "Grace"}},
		want:  "hi @Grace",
	}, {
		name: "unresolvable without hint degrades to raw id",
		text: "<@999> in <#888> for <@&777>",
		want: "@999 in #888 for @777",
	}, {
		name: "zero width characters stripped before matching",
		text: "hi <@​101> the⁠re‎‏",
		want: "hi <@101> there",
	}, {
		name:  "hint channel name",
		text:  "see <#888>",
		hints: Hints{Channels: map[string]string{"888": "announcements"}},
		want:  "see #announcements",
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msg := &Message{GuildID: "guild1", Text: tc.text, Hints: tc.hints}
			got := resolver.Rewrite(context.Background(), msg)
			if got != tc.want {
				t.Errorf("Rewrite(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
