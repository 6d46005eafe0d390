package lmclient

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/basket/clawd/internal/errs"
)

// googleClient talks to the Gemini API via google.golang.org/genai,
// grounded on the pack's embedding-engine usage of the same client
// construction but calling GenerateContent instead of EmbedContent.
type googleClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func newGoogleClient(apiKey, model string, timeoutSeconds int) (*googleClient, error) {
	if apiKey == "" {
		return nil, errs.ConfigInvalid("no Google/Gemini API key configured", nil)
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, errs.LMUnavailable(err)
	}
	return &googleClient{
		client:  client,
		model:   model,
		timeout: timeoutOrDefault(timeoutSeconds),
	}, nil
}

func (c *googleClient) Chat(ctx context.Context, messages []Message, maxTokens int) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var contents []*genai.Content
	var system string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return Response{}, errs.LMUnavailable(err)
	}
	if len(result.Candidates) == 0 {
		return Response{}, errs.LMBadResponse("chat", nil)
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return Response{
		Content: result.Text(),
		Model:   c.model,
		Usage:   usage,
	}, nil
}

func (c *googleClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)},
		&genai.GenerateContentConfig{MaxOutputTokens: 1})
	if err != nil {
		return errs.LMUnavailable(err)
	}
	return nil
}
