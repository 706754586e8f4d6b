// Package llm provides clients for the remote chat boundary.
package llm

import (
	"context"
	"net/http"
	"time"

	"go.aimuz.me/huddle/internal/types"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures LLM completion behavior.
type Options struct {
	MaxTokens   int
	Temperature *float64      // nil leaves the provider default
	Timeout     time.Duration // zero means no client-side timeout
}

// Completer performs chat completions. A failed call returns an error that
// wraps *types.TransportError when the remote service was at fault.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, types.Usage, error)
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature *float64
}

// NewCompleter creates a Completer for the given provider type.
// "openai" and "openai-compatible" (Groq, local servers) share the OpenAI
// client; "claude" talks to the Anthropic messages API.
func NewCompleter(apiType, apiKey, baseURL, model string, opts Options) Completer {
	cfg := completerConfig{
		http:        &http.Client{Timeout: opts.Timeout},
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}

	switch apiType {
	case "claude":
		return &claudeCompleter{cfg: cfg}
	default:
		return newOpenAICompleter(cfg)
	}
}
