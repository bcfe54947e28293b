// Copyright 2024-2026 Aiku AI

// Package langcodes canonicalizes user-supplied language codes and maps
// them onto the variants a translation provider actually accepts.
package langcodes

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// aliasMap rewrites user-friendly codes to provider-valid variants.
// DeepL in particular has no plain EN/PT targets.
var aliasMap = map[string]string{
	"EN":    "EN-GB",
	"PT":    "PT-PT",
	"NO":    "NB",
	"ZH-CN": "ZH",
	"ZH-SG": "ZH",
	"ZH-TW": "ZH-HANT",
	"ZH-HK": "ZH-HANT",
}

// Normalize canonicalizes a language code: trims whitespace, uppercases
// and converts underscores to hyphens. ok is false for empty input.
func Normalize(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	c = strings.ReplaceAll(c, "_", "-")
	return c, c != ""
}

// AliasForProvider maps a normalized code onto the closest variant the
// provider accepts. The fixed alias table is applied first; if the
// aliased code is still not in accepted, a short list of fallback
// substitutions is tried. When nothing matches, the aliased code is
// returned unchanged and the caller must handle provider rejection.
// An empty accepted set skips the acceptance checks entirely.
func AliasForProvider(code string, accepted map[string]struct{}) string {
	c, ok := Normalize(code)
	if !ok {
		return ""
	}
	if alias, ok := aliasMap[c]; ok {
		c = alias
	}
	if len(accepted) == 0 {
		return c
	}
	if _, ok := accepted[c]; ok {
		return c
	}
	var trials []string
	if strings.HasPrefix(c, "EN-") {
		trials = append(trials, "EN")
	}
	switch c {
	case "EN":
		trials = append(trials, "EN-GB")
	case "PT":
		trials = append(trials, "PT-PT")
	case "NO":
		trials = append(trials, "NB")
	}
	for _, t := range trials {
		if _, ok := accepted[t]; ok {
			return t
		}
	}
	return c
}

// nameHints overrides the generated display names where the generic
// BCP-47 rendering is misleading (e.g. provider-specific variants).
var nameHints = map[string]string{
	"EN":      "English (neutral)",
	"EN-GB":   "English (UK)",
	"EN-US":   "English (US)",
	"PT":      "Portuguese",
	"PT-PT":   "Portuguese (EU)",
	"PT-BR":   "Portuguese (BR)",
	"NB":      "Norwegian (Bokmål)",
	"ZH":      "Chinese (simplified)",
	"ZH-HANT": "Chinese (traditional)",
}

// commonCodes is the curated fallback list shown when no provider
// target list is available.
var commonCodes = []string{
	"DE", "EN-GB", "EN-US", "EN", "FR", "ES", "PT-PT", "PT-BR",
	"IT", "NL", "SV", "NB", "DA", "FI", "PL", "CS", "HU", "RO",
	"RU", "UK", "TR", "EL", "BG", "ZH", "ZH-HANT", "JA", "KO", "AR",
}

// Label returns a human-readable English name for a language code.
func Label(code string) string {
	if hint, ok := nameHints[code]; ok {
		return hint
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

// Suggestion is a language code with its display label.
type Suggestion struct {
	Code  string
	Label string
}

const maxSuggestions = 20

// Suggest returns up to 20 (code, label) pairs matching the query. The
// provider's accepted set is preferred as the candidate pool; without
// one, the curated common list is used. Matching is case-insensitive
// on both code and label, and duplicate codes are dropped.
func Suggest(query string, accepted map[string]struct{}) []Suggestion {
	q := strings.ToLower(strings.TrimSpace(query))

	var pool []string
	if len(accepted) > 0 {
		pool = make([]string, 0, len(accepted))
		for code := range accepted {
			pool = append(pool, code)
		}
		sort.Strings(pool)
	} else {
		pool = commonCodes
	}

	seen := make(map[string]struct{}, len(pool))
	var out []Suggestion
	for _, code := range pool {
		if _, dup := seen[code]; dup {
			continue
		}
		label := Label(code)
		if q != "" && !strings.Contains(strings.ToLower(code), q) && !strings.Contains(strings.ToLower(label), q) {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, Suggestion{Code: code, Label: label})
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
