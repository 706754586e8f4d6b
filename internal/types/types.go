// Package types provides shared type definitions for the application.
package types

import (
	"fmt"
	"net/http"
)

// Credential holds the connection settings of one remote AI service.
type Credential struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"` // "openai", "openai-compatible", "claude"
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"` // environment variable holding the key
}

// ChatProfile configures the remote chat boundary.
type ChatProfile struct {
	CredentialID string   `json:"credential_id"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"` // nil means DefaultTemperature
}

// TranscriptionProfile configures the remote (or local) transcription boundary.
type TranscriptionProfile struct {
	Provider     string `json:"provider"` // "whisper-api" or "whisper-local"
	CredentialID string `json:"credential_id,omitempty"`
	Model        string `json:"model,omitempty"`
	Language     string `json:"language,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	ModelSize    string `json:"model_size,omitempty"` // whisper-local: tiny, base, small, medium
}

// DefaultMaxTokens is the default max tokens if not specified.
const DefaultMaxTokens = 1024

// DefaultTemperature is the default temperature if not specified.
const DefaultTemperature = 0.7

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// TransportError reports that a remote boundary was unreachable or answered
// with a non-2xx status. StatusCode is 0 when no response was received.
type TransportError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %d %s: %v", e.Service, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
