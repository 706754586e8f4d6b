package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/huddle/internal/types"
)

const chatService = "chat"

// openaiCompleter implements Completer for OpenAI and compatible APIs.
type openaiCompleter struct {
	client openai.Client
	cfg    completerConfig
}

func newOpenAICompleter(cfg completerConfig) *openaiCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithHTTPClient(cfg.http),
		// Failures surface as ERROR events; the worker never retries.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.baseURL))
	}
	return &openaiCompleter{client: openai.NewClient(opts...), cfg: cfg}
}

func (c *openaiCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.model),
		Messages: toOpenAIMessages(messages),
	}
	if c.cfg.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.maxTokens))
	}
	if c.cfg.temperature != nil {
		params.Temperature = openai.Float(*c.cfg.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", types.Usage{}, openaiTransportError(err)
	}

	usage := types.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	if len(resp.Choices) == 0 {
		return "", usage, &types.TransportError{Service: chatService, Err: errors.New("no choices returned")}
	}

	return resp.Choices[0].Message.Content, usage, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func openaiTransportError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &types.TransportError{Service: chatService, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &types.TransportError{Service: chatService, Err: err}
}
