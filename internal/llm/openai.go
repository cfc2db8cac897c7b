// Package llm provides prompt completion backed by an OpenAI-compatible chat
// completion API, plus a scripted completer for tests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// SystemPrompt frames every completion.
const SystemPrompt = "You are a site reliability engineer diagnosing resource usage problems in Kubernetes workloads."

// Config selects the endpoint and model.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI completes prompts with deterministic sampling.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// NewOpenAI creates a completer. An empty BaseURL targets the public OpenAI API.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	log := slog.Default().With("component", "llm")
	log.Info("initializing completion client", "model", model, "base_url", oc.BaseURL)
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  model,
		log:    log,
	}, nil
}

// Complete sends prompt as a single user turn and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// Temperature is omitempty upstream, so zero would fall back to the
		// server default of 1.
		Temperature: math.SmallestNonzeroFloat32,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	o.log.Debug("completion received",
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}
