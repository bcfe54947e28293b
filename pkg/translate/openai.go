// Copyright 2024-2026 Aiku AI

package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/catcord/langrelay/pkg/langcodes"
)

const defaultOpenAIModel = "gpt-4o-mini"

const translatorSystemPrompt = "You are a professional translator. " +
	"Translate the user's message into the requested target language code. " +
	"Preserve meaning, tone, and formatting. Return ONLY the translated text."

// OpenAI translates through an OpenAI-compatible chat-completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAI creates an OpenAI provider. baseURL may point at any
// OpenAI-compatible endpoint; model defaults to gpt-4o-mini.
func NewOpenAI(token, baseURL, model string, log zerolog.Logger) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	var client *openai.Client
	if token != "" {
		config := openai.DefaultConfig(token)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		client = openai.NewClientWithConfig(config)
	}
	return &OpenAI{
		client: client,
		model:  model,
		log:    log.With().Str("component", "openai").Logger(),
	}
}

func (o *OpenAI) Translate(ctx context.Context, text, target, source string) (string, error) {
	if o.client == nil {
		return "", ErrUnavailable
	}
	tgt, ok := langcodes.Normalize(target)
	if !ok {
		return "", fmt.Errorf("%w: empty target code", ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Target language code: %s.\n", tgt)
	if src, ok := langcodes.Normalize(source); ok {
		prompt += fmt.Sprintf("Source language code (hint): %s.\n", src)
	}
	prompt += "Text to translate:\n" + text

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: translatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", ErrRateLimited
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
