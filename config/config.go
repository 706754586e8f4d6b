// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"go.aimuz.me/huddle/internal/types"
)

const (
	appName        = "huddle"
	configFileName = "config.json"
	envFileName    = ".env"

	// DefaultCredentialID names the credential the default profiles use.
	DefaultCredentialID = "default"

	// DefaultTranscriptionPrompt steers the transcription model towards
	// meeting speech.
	DefaultTranscriptionPrompt = "This is a technical interview or meeting discussion. " +
		"Transcribe clearly with proper punctuation and formatting."
)

// Transcription provider names.
const (
	ProviderWhisperAPI   = "whisper-api"
	ProviderWhisperLocal = "whisper-local"
)

// Config represents the application configuration.
type Config struct {
	Credentials   []types.Credential         `json:"credentials,omitempty"`
	Chat          types.ChatProfile          `json:"chat"`
	Transcription types.TranscriptionProfile `json:"transcription"`
	Assistant     AssistantConfig            `json:"assistant"`
	Speech        SpeechConfig               `json:"speech"`
	Server        ServerConfig               `json:"server"`
	Logging       LoggingConfig              `json:"logging"`

	path string
}

// AssistantConfig tunes the capture and transcription pipeline.
type AssistantConfig struct {
	TranscriptionIntervalSec float64 `json:"transcription_interval_sec"`
	MinAudioLengthSec        float64 `json:"min_audio_length_sec"`
	MaxTranscriptLength      int     `json:"max_transcript_length"`
	SilenceThreshold         float64 `json:"silence_threshold,omitempty"` // window RMS in [0,1); 0 disables the gate
	MinSpeechMs              int     `json:"min_speech_ms,omitempty"`
	AutoSummary              bool    `json:"auto_summary"`
	AutoSummaryIntervalMin   int     `json:"auto_summary_interval_min"`
	BufferDurationMs         int     `json:"buffer_duration_ms"`
	DeviceID                 string  `json:"device_id,omitempty"`
}

// SpeechConfig controls spoken responses.
type SpeechConfig struct {
	Enabled bool   `json:"enabled"`
	Command string `json:"command,omitempty"` // empty picks the platform default
	Rate    int    `json:"rate"`              // -10 to 10
	Volume  int    `json:"volume"`            // 0 to 100
}

// ServerConfig controls the local control API.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "text" or "json"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Credentials: []types.Credential{{
			ID:        DefaultCredentialID,
			Name:      "OpenAI",
			Type:      "openai",
			APIKeyEnv: "OPENAI_API_KEY",
		}},
		Chat: types.ChatProfile{
			CredentialID: DefaultCredentialID,
			Model:        "gpt-4o-mini",
			MaxTokens:    types.DefaultMaxTokens,
			Temperature:  ptr(types.DefaultTemperature),
		},
		Transcription: types.TranscriptionProfile{
			Provider:     ProviderWhisperAPI,
			CredentialID: DefaultCredentialID,
			Model:        "whisper-1",
			Language:     "en",
			Prompt:       DefaultTranscriptionPrompt,
			ModelSize:    "base",
		},
		Assistant: AssistantConfig{
			TranscriptionIntervalSec: 5,
			MinAudioLengthSec:        2,
			MaxTranscriptLength:      10000,
			AutoSummaryIntervalMin:   5,
			BufferDurationMs:         100,
			MinSpeechMs:              200,
		},
		Speech: SpeechConfig{
			Enabled: true,
			Rate:    1,
			Volume:  80,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7878",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load reads the configuration at path, or at DefaultPath when path is empty.
// A missing file yields the defaults. Secrets from a .env file in the working
// directory or next to the config file are loaded into the environment first.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := loadEnv(envFileName, filepath.Join(filepath.Dir(path), envFileName)); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func loadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Path returns the file the configuration is saved to.
func (c *Config) Path() string { return c.path }

// Save persists the configuration to disk.
func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Chat.MaxTokens == 0 {
		c.Chat.MaxTokens = d.Chat.MaxTokens
	}
	if c.Chat.Temperature == nil {
		c.Chat.Temperature = d.Chat.Temperature
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = d.Transcription.Provider
	}
	if c.Transcription.Provider == ProviderWhisperAPI && c.Transcription.Model == "" {
		c.Transcription.Model = d.Transcription.Model
	}
	if c.Transcription.ModelSize == "" {
		c.Transcription.ModelSize = d.Transcription.ModelSize
	}

	a := &c.Assistant
	if a.TranscriptionIntervalSec == 0 {
		a.TranscriptionIntervalSec = d.Assistant.TranscriptionIntervalSec
	}
	if a.MaxTranscriptLength == 0 {
		a.MaxTranscriptLength = d.Assistant.MaxTranscriptLength
	}
	if a.AutoSummaryIntervalMin == 0 {
		a.AutoSummaryIntervalMin = d.Assistant.AutoSummaryIntervalMin
	}
	if a.BufferDurationMs == 0 {
		a.BufferDurationMs = d.Assistant.BufferDurationMs
	}
	if a.MinSpeechMs == 0 {
		a.MinSpeechMs = d.Assistant.MinSpeechMs
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// Interval returns the transcription period.
func (a AssistantConfig) Interval() time.Duration {
	return time.Duration(a.TranscriptionIntervalSec * float64(time.Second))
}

// MinAudioLength returns the shortest drain worth transcribing.
func (a AssistantConfig) MinAudioLength() time.Duration {
	return time.Duration(a.MinAudioLengthSec * float64(time.Second))
}

// MinSpeech returns the voiced time a drain needs to pass the speech gate.
func (a AssistantConfig) MinSpeech() time.Duration {
	return time.Duration(a.MinSpeechMs) * time.Millisecond
}

// BufferDuration returns the capture engine buffer size.
func (a AssistantConfig) BufferDuration() time.Duration {
	return time.Duration(a.BufferDurationMs) * time.Millisecond
}

// AutoSummaryInterval returns the auto summary period.
func (a AssistantConfig) AutoSummaryInterval() time.Duration {
	return time.Duration(a.AutoSummaryIntervalMin) * time.Minute
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredential returns a credential by ID.
func (c *Config) GetCredential(id string) *types.Credential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// APIKey resolves the key of a credential, reading its environment variable
// when no key is embedded.
func APIKey(cred *types.Credential) string {
	if cred == nil {
		return ""
	}
	if cred.APIKey != "" {
		return cred.APIKey
	}
	if cred.APIKeyEnv != "" {
		return os.Getenv(cred.APIKeyEnv)
	}
	return ""
}

// AddCredential adds a new API credential.
func (c *Config) AddCredential(cred types.Credential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if c.GetCredential(cred.ID) != nil {
		return fmt.Errorf("credential already exists: %s", cred.ID)
	}

	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential updates an existing credential.
func (c *Config) UpdateCredential(id string, cred types.Credential) error {
	idx := slices.IndexFunc(c.Credentials, func(x types.Credential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}
	if err := validateCredential(cred); err != nil {
		return err
	}

	cred.ID = id // Preserve ID
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential removes a credential by ID.
// Returns error if the credential is in use by a profile.
func (c *Config) RemoveCredential(id string) error {
	if c.Chat.CredentialID == id {
		return fmt.Errorf("credential in use by chat profile")
	}
	if c.Transcription.CredentialID == id {
		return fmt.Errorf("credential in use by transcription profile")
	}

	idx := slices.IndexFunc(c.Credentials, func(x types.Credential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

func validateCredential(cred types.Credential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" && cred.APIKeyEnv == "" {
		return fmt.Errorf("api key or api key env required")
	}
	switch cred.Type {
	case "openai", "claude":
	case "openai-compatible":
		if cred.BaseURL == "" {
			return fmt.Errorf("base url required for openai-compatible")
		}
	default:
		return fmt.Errorf("unknown credential type: %q", cred.Type)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs validation of the whole configuration.
func (c *Config) Validate() error {
	if err := c.validateChat(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}
	if err := c.validateTranscription(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (c *Config) validateChat() error {
	if c.Chat.Model == "" {
		return fmt.Errorf("model required")
	}
	if c.GetCredential(c.Chat.CredentialID) == nil {
		return fmt.Errorf("credential not found: %s", c.Chat.CredentialID)
	}
	if c.Chat.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.Chat.MaxTokens)
	}
	if t := c.Chat.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", *t)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	switch t.Provider {
	case ProviderWhisperAPI:
		cred := c.GetCredential(t.CredentialID)
		if cred == nil {
			return fmt.Errorf("credential not found: %s", t.CredentialID)
		}
		if cred.Type == "claude" {
			return fmt.Errorf("transcription requires an OpenAI-compatible credential")
		}
	case ProviderWhisperLocal:
	default:
		return fmt.Errorf("unknown provider: %q", t.Provider)
	}
	return nil
}

// Validate validates the pipeline settings.
func (a *AssistantConfig) Validate() error {
	if a.TranscriptionIntervalSec <= 0 {
		return fmt.Errorf("transcription_interval_sec must be positive, got %g", a.TranscriptionIntervalSec)
	}
	if a.MinAudioLengthSec < 0 {
		return fmt.Errorf("min_audio_length_sec cannot be negative, got %g", a.MinAudioLengthSec)
	}
	if a.MaxTranscriptLength <= 0 {
		return fmt.Errorf("max_transcript_length must be positive, got %d", a.MaxTranscriptLength)
	}
	if a.SilenceThreshold < 0 || a.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be in [0, 1), got %g", a.SilenceThreshold)
	}
	if a.MinSpeechMs < 0 {
		return fmt.Errorf("min_speech_ms cannot be negative, got %d", a.MinSpeechMs)
	}
	if a.AutoSummary && a.AutoSummaryIntervalMin <= 0 {
		return fmt.Errorf("auto_summary_interval_min must be positive, got %d", a.AutoSummaryIntervalMin)
	}
	if a.BufferDurationMs <= 0 {
		return fmt.Errorf("buffer_duration_ms must be positive, got %d", a.BufferDurationMs)
	}
	return nil
}

// Validate validates speech settings.
func (s *SpeechConfig) Validate() error {
	if s.Rate < -10 || s.Rate > 10 {
		return fmt.Errorf("rate must be between -10 and 10, got %d", s.Rate)
	}
	if s.Volume < 0 || s.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", s.Volume)
	}
	return nil
}

// Validate validates server settings.
func (s *ServerConfig) Validate() error {
	if s.Enabled && s.Addr == "" {
		return fmt.Errorf("addr cannot be empty when the server is enabled")
	}
	return nil
}

// Validate validates logging settings.
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", l.Format)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
