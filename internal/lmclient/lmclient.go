// Package lmclient is a thin, provider-agnostic chat capability: one
// call in, one response out, plus a health probe. Unlike the teacher's
// Genkit-backed Brain, there is no session, tool-calling, or streaming
// surface here — the Cycle Engine is the only thing that ever decides
// what action to take next.
package lmclient

import (
	"context"
	"os"
	"strings"

	"github.com/basket/clawd/internal/config"
	"github.com/basket/clawd/internal/errs"
)

// Role names a chat message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat request.
type Message struct {
	Role    Role
	Content string
}

// Usage reports token accounting for a chat call, when the provider
// supplies it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the result of a chat call.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is the capability every LM provider implements: chat and a
// cheap health probe, nothing more.
type Client interface {
	Chat(ctx context.Context, messages []Message, maxTokens int) (Response, error)
	Health(ctx context.Context) error
}

// New builds the configured provider's Client. An empty or unrecognized
// provider falls back to "anthropic", matching the teacher's
// default-to-a-sane-provider posture.
func New(cfg config.LLMConfig) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	model := strings.TrimSpace(cfg.Model)
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = envAPIKeyForProvider(provider)
	}

	switch provider {
	case "anthropic", "":
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		return newAnthropicClient(apiKey, model, cfg.BaseURL, cfg.Timeout)
	case "openai", "openai_compatible":
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newOpenAIClient(apiKey, model, cfg.BaseURL, cfg.Timeout)
	case "openrouter":
		if model == "" {
			model = "anthropic/claude-sonnet-4-5-20250929"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return newOpenAIClient(apiKey, model, baseURL, cfg.Timeout)
	case "google":
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return newGoogleClient(apiKey, model, cfg.Timeout)
	default:
		return nil, errs.ConfigInvalid("unknown llm.provider: "+provider, nil)
	}
}

// envAPIKeyForProvider looks up the conventional environment variable
// for a provider when config.yaml doesn't set llm.api_key directly.
func envAPIKeyForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai", "openai_compatible":
		return os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "google", "":
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
