package lmclient

import (
	"context"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/basket/clawd/internal/errs"
)

// openaiClient talks to any OpenAI-chat-completions-wire-compatible
// endpoint directly: OpenAI itself, an openai_compatible gateway, or
// OpenRouter (selected via baseURL in the factory).
type openaiClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func newOpenAIClient(apiKey, model, baseURL string, timeoutSeconds int) (*openaiClient, error) {
	if apiKey == "" {
		return nil, errs.ConfigInvalid("no OpenAI-compatible API key configured", nil)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiClient{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeoutOrDefault(timeoutSeconds),
	}, nil
}

func (c *openaiClient) Chat(ctx context.Context, messages []Message, maxTokens int) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var turns []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			turns = append(turns, openai.SystemMessage(m.Content))
		case RoleAssistant:
			turns = append(turns, openai.AssistantMessage(m.Content))
		default:
			turns = append(turns, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: turns,
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, errs.LMUnavailable(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errs.LMBadResponse("chat", nil)
	}

	return Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (c *openaiClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		return errs.LMUnavailable(err)
	}
	return nil
}
