// Copyright 2024-2026 Aiku AI

// Package translate unifies the supported translation backends behind a
// single Translator capability with provider fallback.
package translate

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Provider names as stored in guild configuration.
const (
	ProviderDeepL  = "deepl"
	ProviderOpenAI = "openai"
)

// Sentinel errors distinguishing the failure modes callers recover
// from. All of them degrade to forwarding the untranslated text.
var (
	// ErrUnavailable means no translation backend is configured.
	ErrUnavailable = errors.New("translation unavailable: no provider configured")
	// ErrRateLimited means the provider signalled throttling.
	ErrRateLimited = errors.New("translation provider rate limited")
	// ErrRejected means the provider does not accept the target code.
	ErrRejected = errors.New("target language rejected by provider")
)

// Translator translates text into the target language. source may be
// empty, in which case the provider auto-detects.
type Translator interface {
	Translate(ctx context.Context, text, target, source string) (string, error)
}

// maxInputRunes is the submission cap; longer inputs are truncated
// with an ellipsis marker before hitting the provider.
const maxInputRunes = 5000

// Truncate caps text at the provider submission limit, appending an
// ellipsis when it had to cut.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= maxInputRunes {
		return text
	}
	return string(r[:maxInputRunes]) + "…"
}

// Adapter dispatches translation requests to the provider a guild has
// configured, falling back to any other registered provider when the
// requested one is not available.
type Adapter struct {
	providers map[string]Translator
	order     []string
	log       zerolog.Logger
}

// NewAdapter creates an empty adapter. Register providers that have
// credentials; unconfigured backends must not be registered.
func NewAdapter(log zerolog.Logger) *Adapter {
	return &Adapter{
		providers: make(map[string]Translator),
		log:       log.With().Str("component", "translate").Logger(),
	}
}

// Register adds a named provider. Registration order decides fallback
// priority.
func (a *Adapter) Register(name string, t Translator) {
	if _, ok := a.providers[name]; !ok {
		a.order = append(a.order, name)
	}
	a.providers[name] = t
}

// Has reports whether a provider with credentials is registered.
func (a *Adapter) Has(name string) bool {
	_, ok := a.providers[name]
	return ok
}

// Default returns the highest-priority registered provider name, or ""
// when none is registered.
func (a *Adapter) Default() string {
	if len(a.order) == 0 {
		return ""
	}
	return a.order[0]
}

// TargetLister is implemented by providers that can enumerate the
// target codes they accept.
type TargetLister interface {
	Targets(ctx context.Context) map[string]struct{}
}

// Targets returns the accepted target codes of the named provider,
// following the same fallback rule as Translate. Nil means the backend
// cannot enumerate its targets and anything may be submitted.
func (a *Adapter) Targets(ctx context.Context, provider string) map[string]struct{} {
	if len(a.order) == 0 {
		return nil
	}
	t, ok := a.providers[provider]
	if !ok {
		t = a.providers[a.order[0]]
	}
	if lister, ok := t.(TargetLister); ok {
		return lister.Targets(ctx)
	}
	return nil
}

// Translate routes the request to the named provider. When that
// provider is not registered the first registered one is used instead;
// ErrUnavailable is returned when there is none at all. Input is
// truncated to the submission cap before dispatch.
func (a *Adapter) Translate(ctx context.Context, provider, text, target, source string) (string, error) {
	if len(a.order) == 0 {
		return "", ErrUnavailable
	}
	t, ok := a.providers[provider]
	if !ok {
		fallback := a.order[0]
		a.log.Debug().
			Str("requested", provider).
			Str("fallback", fallback).
			Msg("Requested provider not configured, using fallback")
		t = a.providers[fallback]
	}
	return t.Translate(ctx, Truncate(text), target, source)
}
