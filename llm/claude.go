package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.aimuz.me/huddle/internal/types"
)

const (
	claudeMessagesURL = "https://api.anthropic.com/v1/messages"
	claudeAPIVersion  = "2023-06-01"
)

// claudeCompleter talks to the Anthropic messages API.
type claudeCompleter struct {
	cfg completerConfig
}

type claudeRequest struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []claudeTurn `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type claudeTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// claudeBody converts chat messages to a messages API request. System
// messages (prompt and transcript context) become one system string, and
// consecutive turns of the same role are merged because the API requires
// user and assistant turns to alternate.
func (c *claudeCompleter) claudeBody(messages []Message) claudeRequest {
	req := claudeRequest{
		Model:       c.cfg.model,
		MaxTokens:   c.cfg.maxTokens,
		Temperature: c.cfg.temperature,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = types.DefaultMaxTokens
	}

	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == m.Role {
			req.Messages[n-1].Content += "\n\n" + m.Content
			continue
		}
		req.Messages = append(req.Messages, claudeTurn{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

func (c *claudeCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	payload, err := json.Marshal(c.claudeBody(messages))
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	url := claudeMessagesURL
	if c.cfg.baseURL != "" {
		url = c.cfg.baseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", types.Usage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.cfg.http.Do(req)
	if err != nil {
		return "", types.Usage{}, &types.TransportError{Service: chatService, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.Usage{}, &types.TransportError{Service: chatService, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return decodeClaudeReply(resp.StatusCode, raw)
}

func decodeClaudeReply(status int, raw []byte) (string, types.Usage, error) {
	var reply claudeReply
	decodeErr := json.Unmarshal(raw, &reply)

	if status/100 != 2 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && reply.Error != nil {
			msg = reply.Error.Type + ": " + reply.Error.Message
		}
		return "", types.Usage{}, &types.TransportError{Service: chatService, StatusCode: status, Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return "", types.Usage{}, fmt.Errorf("unmarshal response: %w", decodeErr)
	}

	usage := types.Usage{
		PromptTokens:     reply.Usage.InputTokens,
		CompletionTokens: reply.Usage.OutputTokens,
		TotalTokens:      reply.Usage.InputTokens + reply.Usage.OutputTokens,
	}
	var text strings.Builder
	for _, part := range reply.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), usage, nil
}
