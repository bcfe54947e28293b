// Copyright 2024-2026 Aiku AI

package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/catcord/langrelay/pkg/langcodes"
)

const (
	defaultDeepLBaseURL = "https://api-free.deepl.com/v2"
	targetsCacheTTL     = time.Hour
)

// DeepL translates through the DeepL REST API. The set of valid target
// languages is fetched from the provider and cached for an hour;
// requested targets are aliased onto that set before submission.
type DeepL struct {
	token     string
	baseURL   string
	formality string
	http      *http.Client
	log       zerolog.Logger

	mu        sync.Mutex
	targets   map[string]struct{}
	targetsAt time.Time
}

// NewDeepL creates a DeepL provider. baseURL defaults to the free API
// endpoint. formality is passed through when non-empty (default, less,
// more).
func NewDeepL(token, baseURL, formality string, log zerolog.Logger) *DeepL {
	if baseURL == "" {
		baseURL = defaultDeepLBaseURL
	}
	return &DeepL{
		token:     token,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		formality: formality,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
		log: log.With().Str("component", "deepl").Logger(),
	}
}

// Targets returns the provider's accepted target codes, cached for an
// hour. A fetch failure returns the stale set (possibly empty) so the
// caller can proceed without validation.
func (d *DeepL) Targets(ctx context.Context) map[string]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.targets != nil && time.Since(d.targetsAt) < targetsCacheTTL {
		return d.targets
	}
	if d.token == "" {
		return nil
	}

	u := fmt.Sprintf("%s/languages?type=target&auth_key=%s", d.baseURL, url.QueryEscape(d.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return d.targets
	}
	resp, err := d.http.Do(req)
	if err != nil {
		d.log.Warn().Err(err).Msg("Failed to fetch DeepL target languages")
		return d.targets
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.log.Warn().Int("status", resp.StatusCode).Msg("DeepL language list request failed")
		return d.targets
	}

	var items []struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		d.log.Warn().Err(err).Msg("Failed to decode DeepL language list")
		return d.targets
	}
	targets := make(map[string]struct{}, len(items))
	for _, item := range items {
		if code, ok := langcodes.Normalize(item.Language); ok {
			targets[code] = struct{}{}
		}
	}
	d.targets = targets
	d.targetsAt = time.Now()
	return d.targets
}

func (d *DeepL) Translate(ctx context.Context, text, target, source string) (string, error) {
	if d.token == "" {
		return "", ErrUnavailable
	}
	tgt, ok := langcodes.Normalize(target)
	if !ok {
		return "", fmt.Errorf("%w: empty target code", ErrRejected)
	}
	if targets := d.Targets(ctx); len(targets) > 0 {
		tgt = langcodes.AliasForProvider(tgt, targets)
		if _, ok := targets[tgt]; !ok {
			return "", fmt.Errorf("%w: %s", ErrRejected, tgt)
		}
	}

	form := url.Values{
		"auth_key":            {d.token},
		"text":                {text},
		"target_lang":         {tgt},
		"preserve_formatting": {"1"},
	}
	if src, ok := langcodes.Normalize(source); ok {
		form.Set("source_lang", src)
	}
	if d.formality != "" {
		form.Set("formality", d.formality)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("deepl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", ErrRejected, tgt)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("deepl error (%d): %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("deepl response: %w", err)
	}
	if len(payload.Translations) == 0 {
		return "", fmt.Errorf("deepl: no translation returned")
	}
	return strings.TrimSpace(payload.Translations[0].Text), nil
}
