package lmclient

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/basket/clawd/internal/errs"
)

// anthropicClient talks to the Anthropic Messages API directly, with no
// Genkit or tool-calling layer in between.
type anthropicClient struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

func newAnthropicClient(apiKey, model, baseURL string, timeoutSeconds int) (*anthropicClient, error) {
	if apiKey == "" {
		return nil, errs.ConfigInvalid("no Anthropic API key configured", nil)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicClient{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: timeoutOrDefault(timeoutSeconds),
	}, nil
}

func (c *anthropicClient) Chat(ctx context.Context, messages []Message, maxTokens int) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var system string
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, errs.LMUnavailable(err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}

	return Response{
		Content: out.String(),
		Model:   string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (c *anthropicClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	if err != nil {
		return errs.LMUnavailable(err)
	}
	return nil
}

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
